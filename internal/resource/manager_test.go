package resource

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestCheckRecordsStatus(t *testing.T) {
	t.Parallel()
	rm := NewResourceManager(map[string]interface{}{"heartbeat_interval": "1m"})
	if rm.heartbeatInterval != time.Minute {
		t.Fatalf("interval = %v", rm.heartbeatInterval)
	}
	rm.AddResource("db", fakePinger{})
	rm.AddResource("cache", fakePinger{err: errors.New("down")})
	rm.AddResource("config", "not pingable")

	res := rm.Check(context.Background())
	if len(res) != 2 || res["db"] != nil || res["cache"] == nil {
		t.Fatalf("Check = %v", res)
	}
	st := rm.Status()
	if st["db"] != "ok" || st["cache"] != "error: down" {
		t.Fatalf("Status = %v", st)
	}
	if got := rm.ListResources(); len(got) != 3 || got[0] != "cache" {
		t.Fatalf("ListResources = %v", got)
	}
	rm.RemoveResource("cache")
	if _, ok := rm.Status()["cache"]; ok {
		t.Fatal("status kept after remove")
	}
}
