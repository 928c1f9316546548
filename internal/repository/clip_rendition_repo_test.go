package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
)

func TestClipRenditionRepo_Upsert(t *testing.T) {
	repo := NewClipRenditionRepository(setupTestDB(t))
	ctx := context.Background()

	r := &models.ClipRendition{
		ClipID:     "clip-123",
		Resolution: "720p",
		URL:        "https://cdn.example.com/clips/clip-123/720p.mp4",
		ObjectKey:  "clips/clip-123/720p.mp4",
	}
	require.NoError(t, repo.Upsert(ctx, r))

	// Upserting the same pair replaces the URL instead of duplicating.
	updated := &models.ClipRendition{
		ClipID:     "clip-123",
		Resolution: "720p",
		URL:        "https://cdn.example.com/clips/clip-123/720p-v2.mp4",
		ObjectKey:  "clips/clip-123/720p-v2.mp4",
	}
	require.NoError(t, repo.Upsert(ctx, updated))

	all, err := repo.GetByClipID(ctx, "clip-123")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Contains(t, all[0].URL, "720p-v2")
}

func TestClipRenditionRepo_Get(t *testing.T) {
	repo := NewClipRenditionRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.ClipRendition{
		ClipID:     "clip-9",
		Resolution: "480p",
		ObjectKey:  "clips/clip-9/480p.mp4",
	}))

	found, err := repo.Get(ctx, "clip-9", "480p")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "clips/clip-9/480p.mp4", found.ObjectKey)

	missing, err := repo.Get(ctx, "clip-9", "1080p")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClipRenditionRepo_ValidatesFields(t *testing.T) {
	repo := NewClipRenditionRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.Upsert(ctx, &models.ClipRendition{Resolution: "720p"})
	assert.ErrorIs(t, err, models.ErrClipIDRequired)

	err = repo.Upsert(ctx, &models.ClipRendition{ClipID: "clip-1"})
	assert.ErrorIs(t, err, models.ErrResolutionRequired)
}

func TestProjectRepo_SetRenderResult(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))
	ctx := context.Background()

	p := &models.Project{Title: "Launch video", Width: 1920, Height: 1080, FPS: 30}
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.SetStatus(ctx, p.ID, models.ProjectStatusRendering))
	require.NoError(t, repo.SetRenderResult(ctx, p.ID,
		"https://cdn.example.com/renders/out.mp4",
		"https://cdn.example.com/renders/out_thumb.jpg",
		42.5,
	))

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.ProjectStatusFinished, found.Status)
	assert.Equal(t, 42.5, found.DurationSec)
	assert.Contains(t, found.OutputURL, "out.mp4")
}
