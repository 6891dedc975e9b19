package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	branch    string
	log       []models.OrderStatusLog
	history   []models.OrderHistory
	err       error
	gotLimit  int
	gotOffset int
}

func (f *fakeRepo) GetOrderBranch(context.Context, string) (string, error) {
	if f.branch == "" {
		return "", lifecycle.ErrNotFound
	}
	return f.branch, nil
}

func (f *fakeRepo) GetOrderStatusLog(context.Context, string) ([]models.OrderStatusLog, error) {
	return f.log, f.err
}

func (f *fakeRepo) GetBranchHistory(_ context.Context, _ string, limit, offset int) ([]models.OrderHistory, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.history, f.err
}

type guardFunc func(actor, branchID string) error

func (g guardFunc) Authorize(_ context.Context, actor, branchID string) error { return g(actor, branchID) }

func allowAll(string, string) error { return nil }

func newService(repo Repository, guard guardFunc) *TrackingService {
	return NewTrackingService(repo, guard, logger.New("test", &bytes.Buffer{}))
}

func TestGetOrderStatusLog(t *testing.T) {
	notes := "Weight recorded"
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &fakeRepo{branch: "b1", log: []models.OrderStatusLog{
		{ID: 1, OrderID: "o1", Status: "received", ChangedBy: "emp-1", ChangedAt: at},
		{ID: 2, OrderID: "o1", Status: "in_progress", ChangedBy: "emp-1", ChangedAt: at.Add(time.Minute), Notes: &notes},
	}}

	entries, err := newService(repo, allowAll).GetOrderStatusLog(context.Background(), "emp-1", "o1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "in_progress", entries[1].Status)
	assert.Equal(t, &notes, entries[1].Notes)
}

func TestGetOrderStatusLog_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newService(&fakeRepo{}, allowAll).GetOrderStatusLog(ctx, "emp-1", "o1")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	_, err = newService(&fakeRepo{branch: "b1"}, allowAll).GetOrderStatusLog(ctx, "emp-1", "o1")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound, "known order with an empty log")

	_, err = newService(&fakeRepo{branch: "b1", err: errors.New("boom")}, allowAll).GetOrderStatusLog(ctx, "emp-1", "o1")
	assert.ErrorIs(t, err, lifecycle.ErrStore)
}

func TestGetOrderStatusLog_ChecksOrderBranch(t *testing.T) {
	var checked string
	repo := &fakeRepo{branch: "b2", log: []models.OrderStatusLog{{OrderID: "o1", Status: "received"}}}
	svc := newService(repo, func(actor, branchID string) error {
		checked = actor + "@" + branchID
		return lifecycle.ErrUnauthorized
	})

	entries, err := svc.GetOrderStatusLog(context.Background(), "emp-1", "o1")
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)
	assert.Nil(t, entries)
	assert.Equal(t, "emp-1@b2", checked)
}

func TestGetBranchHistory_Paging(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo, allowAll)

	history, err := svc.GetBranchHistory(context.Background(), "emp-1", "b1", 0, -5)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Equal(t, DefaultPageSize, repo.gotLimit)
	assert.Equal(t, 0, repo.gotOffset)

	_, err = svc.GetBranchHistory(context.Background(), "emp-1", "b1", 1000, 40)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, repo.gotLimit)
	assert.Equal(t, 40, repo.gotOffset)
}

func TestGetBranchHistory_Unauthorized(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo, func(string, string) error { return lifecycle.ErrUnauthorized })

	_, err := svc.GetBranchHistory(context.Background(), "emp-9", "b1", 10, 0)
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)
	assert.Zero(t, repo.gotLimit)
}
