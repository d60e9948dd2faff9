package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioFetch(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	setup := func(t *testing.T) (*fixture, *service.AudioService) {
		f := newFixture(t)
		svc, err := service.NewAudioService(f.resolver, f.blobs, testLogger())
		require.NoError(t, err)
		return f, svc
	}

	t.Run("completed speech task", func(t *testing.T) {
		f, svc := setup(t)
		taskID := uuid.New()
		blobID, err := f.blobs.Put(ctx, []byte("ID3 audio"), "audio/mpeg", nil)
		require.NoError(t, err)
		artifact, err := domain.NewArtifact(taskID, ownerID, domain.TaskKindSpeech, blobID, "audio/mpeg")
		require.NoError(t, err)
		_, err = f.artifacts.Create(ctx, artifact)
		require.NoError(t, err)

		audio, err := svc.Fetch(ctx, ownerID, taskID)
		require.NoError(t, err)
		assert.Equal(t, []byte("ID3 audio"), audio.Data)
		assert.Equal(t, "audio/mpeg", audio.ContentType)

		_, err = svc.Fetch(ctx, uuid.New(), taskID)
		assert.ErrorIs(t, err, service.ErrNotReady, "another owner sees the task as processing")
	})

	t.Run("unknown task is not ready", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.Fetch(ctx, ownerID, uuid.New())
		assert.ErrorIs(t, err, service.ErrNotReady)
	})

	t.Run("failed task", func(t *testing.T) {
		f, svc := setup(t)
		taskID := uuid.New()
		now := time.Now().UTC()
		require.NoError(t, f.tasks.Upsert(ctx, &domain.TaskRecord{
			TaskID:       taskID,
			OwnerID:      ownerID,
			Kind:         domain.TaskKindSpeech,
			Status:       domain.TaskStatusFailed,
			ErrorMessage: "synthesis failed",
			CreatedAt:    now,
			UpdatedAt:    now,
		}))

		_, err := svc.Fetch(ctx, ownerID, taskID)
		assert.ErrorIs(t, err, service.ErrTaskFailed)
		assert.Contains(t, err.Error(), "synthesis failed")
	})

	t.Run("document task has no audio", func(t *testing.T) {
		f, svc := setup(t)
		taskID := uuid.New()
		artifact, err := domain.NewArtifact(taskID, ownerID, domain.TaskKindDocument, uuid.NewString(), "")
		require.NoError(t, err)
		_, err = f.artifacts.Create(ctx, artifact)
		require.NoError(t, err)

		_, err = svc.Fetch(ctx, ownerID, taskID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
