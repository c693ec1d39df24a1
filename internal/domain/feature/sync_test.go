package feature

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/worksuite/worksuite-api/internal/pkg/clock"
)

type recordingNotifier struct {
	codes []string
}

func (n *recordingNotifier) CatalogChanged(_ context.Context, code string) error {
	n.codes = append(n.codes, code)
	return nil
}

func TestWritesAnnounceChanges(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), clock.NewFake(time.Now()), time.Minute)
	n := &recordingNotifier{}
	svc.SetNotifier(n)

	if _, err := svc.Seed(ctx, DefaultFeatures()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.Seed(ctx, DefaultFeatures()); err != nil {
		t.Fatalf("reseed failed: %v", err)
	}
	if err := svc.SetActive(ctx, "team_chat", false); err != nil {
		t.Fatalf("set active failed: %v", err)
	}

	if len(n.codes) != 2 || n.codes[0] != "*" || n.codes[1] != "TEAM_CHAT" {
		t.Fatalf("unexpected announcements: %v", n.codes)
	}
}

func TestSyncDropsSnapshotOnRemoteChange(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), clock.NewFake(time.Now()), time.Hour)
	if _, err := svc.Seed(ctx, DefaultFeatures()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.GetByCode(ctx, "CRM_CORE"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	syncer := &Sync{svc: svc, instanceID: "local"}

	own, _ := json.Marshal(catalogEvent{Code: "CRM_CORE", SenderInstanceID: "local"})
	syncer.handle(string(own))
	if svc.snap == nil {
		t.Fatalf("own events must be ignored")
	}

	remote, _ := json.Marshal(catalogEvent{Code: "CRM_CORE", SenderInstanceID: "remote"})
	syncer.handle(string(remote))
	if svc.snap != nil {
		t.Fatalf("remote change must drop the snapshot")
	}

	syncer.handle("not json")
}
