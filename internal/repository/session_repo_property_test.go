package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agent-console/backend/internal/db"
	"github.com/agent-console/backend/internal/model"
)

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// For any valid session snapshot, a created row can be retrieved and
// every field survives the round trip, including subsequent state
// transitions.
func TestSessionPersistenceRoundTripProperty(t *testing.T) {
	testDB, err := db.OpenTest()
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer testDB.Close()

	repo := NewSessionRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 100
	})

	properties.Property("created sessions round-trip through the database", prop.ForAll(
		func(workdir, modelName string, exitCode int) bool {
			id := generateID()

			snap := model.SessionState{
				ID:        id,
				Workdir:   workdir,
				Model:     modelName,
				State:     model.StatePending,
				CreatedAt: time.Now(),
			}

			if err := repo.Create(ctx, snap); err != nil {
				t.Logf("failed to create session: %v", err)
				return false
			}

			retrieved, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Logf("failed to retrieve session: %v", err)
				return false
			}
			if retrieved.ID != id ||
				retrieved.Workdir != workdir ||
				retrieved.Model != modelName ||
				retrieved.State != model.StatePending ||
				retrieved.ExitCode != nil {
				t.Logf("retrieved session does not match created session: %+v", retrieved)
				return false
			}

			// Drive the row through the full lifecycle.
			if err := repo.UpdateState(ctx, id, model.StateActive, nil); err != nil {
				t.Logf("failed to mark active: %v", err)
				return false
			}
			if err := repo.UpdateState(ctx, id, model.StateExited, &exitCode); err != nil {
				t.Logf("failed to mark exited: %v", err)
				return false
			}

			final, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Logf("failed to retrieve exited session: %v", err)
				return false
			}
			if final.State != model.StateExited || final.ExitCode == nil || *final.ExitCode != exitCode {
				t.Logf("exited session state mismatch: %+v", final)
				return false
			}

			repo.Delete(ctx, id)
			return true
		},
		nonEmptyString,
		nonEmptyString,
		gen.IntRange(-1, 255),
	))

	properties.TestingRun(t)
}

func TestGetByIDMissing(t *testing.T) {
	testDB, err := db.OpenTest()
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer testDB.Close()

	repo := NewSessionRepository(testDB)
	if _, err := repo.GetByID(context.Background(), "missing"); err != model.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.UpdateState(context.Background(), "missing", model.StateActive, nil); err != model.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound from UpdateState, got %v", err)
	}
	if err := repo.Delete(context.Background(), "missing"); err != model.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound from Delete, got %v", err)
	}
}
