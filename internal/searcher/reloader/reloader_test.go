package reloader

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
)

type fakeRegistry struct {
	reloaded []string
	fail     error
}

func (f *fakeRegistry) Reload(name string) error {
	if name != "genes" {
		return apperrors.Newf(apperrors.ErrIndexNotFound, 404, "no index named %q", name)
	}
	if f.fail != nil {
		return f.fail
	}
	f.reloaded = append(f.reloaded, name)
	return nil
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) InvalidateIndex(_ context.Context, index string) (int64, error) {
	f.invalidated = append(f.invalidated, index)
	return 3, nil
}

func encode(t *testing.T, e analytics.IndexEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandler(t *testing.T) {
	reg := &fakeRegistry{}
	c := &fakeCache{}
	h := Handler(reg, c)
	ctx := context.Background()

	msgs := [][]byte{
		encode(t, analytics.IndexEvent{Type: analytics.EventIndexRebuilt, Index: "genes"}),
		encode(t, analytics.IndexEvent{Type: analytics.EventIndexRebuilt, Index: "songs"}),
		encode(t, analytics.IndexEvent{Type: "something_else", Index: "genes"}),
		[]byte("garbage"),
	}
	for _, m := range msgs {
		if err := h(ctx, nil, m); err != nil {
			t.Errorf("handler(%s) = %v, want nil", m, err)
		}
	}
	if len(reg.reloaded) != 1 || len(c.invalidated) != 1 || c.invalidated[0] != "genes" {
		t.Errorf("reloaded %v, invalidated %v", reg.reloaded, c.invalidated)
	}
}

func TestHandlerReloadFailureKeepsCache(t *testing.T) {
	reg := &fakeRegistry{fail: errors.New("disk gone")}
	c := &fakeCache{}
	h := Handler(reg, c)
	if err := h(context.Background(), nil, encode(t, analytics.IndexEvent{Type: analytics.EventIndexRebuilt, Index: "genes"})); err != nil {
		t.Fatalf("handler = %v", err)
	}
	if len(c.invalidated) != 0 {
		t.Error("cache invalidated although the reload failed")
	}
}
