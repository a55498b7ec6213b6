package cmd

import (
	"context"
	"errors"
	"testing"

	"shv.dev/broker/internal/control"
)

type fakeClient struct {
	status       control.Status
	statusErr    error
	reloadCalled bool
	reloadErr    error
	stopCalled   bool
	stopErr      error
}

func (f *fakeClient) Status(ctx context.Context) (control.Status, error) { return f.status, f.statusErr }
func (f *fakeClient) Reload(ctx context.Context) error                  { f.reloadCalled = true; return f.reloadErr }
func (f *fakeClient) Shutdown(ctx context.Context) error                { f.stopCalled = true; return f.stopErr }
func (f *fakeClient) Ping(ctx context.Context) error                    { return f.statusErr }

func withFakeClient(t *testing.T, f *fakeClient) {
	t.Helper()
	prev := newControlClient
	newControlClient = func(socket string) ClientInterface { return f }
	t.Cleanup(func() { newControlClient = prev })
}

func TestFakeClientSatisfiesInterface(t *testing.T) {
	var _ ClientInterface = &fakeClient{}
}

func TestFakeClientReportsReloadError(t *testing.T) {
	f := &fakeClient{reloadErr: errors.New("boom")}
	withFakeClient(t, f)
	if err := f.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !f.reloadCalled {
		t.Fatal("expected Reload to be recorded")
	}
}
