package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domnotify "github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

func outboxRow(key, dedup string, due time.Time) *types.NotificationOutbox {
	return &types.NotificationOutbox{
		MessageKey:    key,
		DedupKey:      dedup,
		Template:      domnotify.TemplateNegotiationRequested,
		RecipientID:   uuid.New(),
		Payload:       datatypes.JSON([]byte(`{}`)),
		NextAttemptAt: due,
	}
}

func TestOutboxRepoEnqueueDedups(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewOutboxRepo(db, testutil.Logger(t))

	dedup := "negotiation_requested:" + uuid.NewString()
	inserted, err := repo.Enqueue(dbc, outboxRow(uuid.NewString()[:26], dedup, time.Now()))
	if err != nil || !inserted {
		t.Fatalf("Enqueue: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.Enqueue(dbc, outboxRow(uuid.NewString()[:26], dedup, time.Now()))
	if err != nil || inserted {
		t.Fatalf("Enqueue(dup): inserted=%v err=%v", inserted, err)
	}
	row, err := repo.GetByDedupKey(dbc, dedup)
	if err != nil || row == nil || row.Status != domnotify.OutboxStatusPending {
		t.Fatalf("GetByDedupKey: row=%v err=%v", row, err)
	}
}

func TestOutboxRepoClaimAndMark(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewOutboxRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	due := outboxRow(uuid.NewString()[:26], uuid.NewString(), now.Add(-time.Minute))
	later := outboxRow(uuid.NewString()[:26], uuid.NewString(), now.Add(time.Hour))
	for _, r := range []*types.NotificationOutbox{due, later} {
		if _, err := repo.Enqueue(dbc, r); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := repo.ClaimDue(dbc, now, 10, time.Minute)
	if err != nil || len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("ClaimDue: len=%d err=%v", len(claimed), err)
	}
	if again, err := repo.ClaimDue(dbc, now, 10, time.Minute); err != nil || len(again) != 0 {
		t.Fatalf("leased rows must not be claimed twice: len=%d err=%v", len(again), err)
	}

	if err := repo.MarkRetry(dbc, due.ID, 1, now.Add(-time.Second), "boom"); err != nil {
		t.Fatalf("MarkRetry: %v", err)
	}
	claimed, err = repo.ClaimDue(dbc, now, 10, time.Minute)
	if err != nil || len(claimed) != 1 || claimed[0].Attempts != 1 {
		t.Fatalf("ClaimDue after retry: len=%d err=%v", len(claimed), err)
	}
	if err := repo.MarkSent(dbc, due.ID, now); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	got, err := repo.GetByID(dbc, due.ID)
	if err != nil || got.Status != domnotify.OutboxStatusSent || got.SentAt == nil {
		t.Fatalf("GetByID after sent: %+v err=%v", got, err)
	}

	if err := repo.MarkFailed(dbc, later.ID, 10, "gave up"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err = repo.GetByID(dbc, later.ID)
	if err != nil || got.Status != domnotify.OutboxStatusFailed || got.Attempts != 10 {
		t.Fatalf("GetByID after failed: %+v err=%v", got, err)
	}
}
