package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vovakirdan/lanchat-server/internal/store"
)

func newTestRouter(t *testing.T, opts ...RouterOption) (*Router, *Presence, store.Store) {
	t.Helper()

	st := newTestStore(t)
	presence := NewPresence()
	return NewRouter(st, newTestBlobs(t), presence, nil, opts...), presence, st
}

func TestSendPrivateOfflineIsStoredUnread(t *testing.T) {
	r, _, st := newTestRouter(t)
	ctx := context.Background()

	id, err := r.SendPrivate(ctx, "alice", "bob", "hi", "2024-01-01T10:00:00Z")
	if err != nil {
		t.Fatalf("send private: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive message id, got %d", id)
	}

	counts, err := st.UnreadCounts(ctx, "bob")
	if err != nil {
		t.Fatalf("unread counts: %v", err)
	}
	if len(counts.Private) != 1 || counts.Private[0].Sender != "alice" || counts.Private[0].Count != 1 {
		t.Fatalf("expected one unread from alice, got %+v", counts.Private)
	}

	// Bob reads the conversation later.
	if _, err := r.History(ctx, "bob", "alice"); err != nil {
		t.Fatalf("history: %v", err)
	}
	counts, _ = st.UnreadCounts(ctx, "bob")
	if len(counts.Private) != 0 {
		t.Fatalf("expected no unread after history, got %+v", counts.Private)
	}
}

func TestSendPrivateOnlineDeliversAndMarksRead(t *testing.T) {
	r, presence, st := newTestRouter(t)
	ctx := context.Background()

	bob := newFakeConn("b")
	presence.Bind(bob, "bob")

	id, err := r.SendPrivate(ctx, "alice", "bob", "hi", "ts")
	if err != nil {
		t.Fatalf("send private: %v", err)
	}

	events := bob.received()
	if len(events) != 1 || events[0].Kind != EventPrivateMessage {
		t.Fatalf("expected one private message push, got %+v", events)
	}
	msg := events[0].Message
	if msg.ID != id || msg.From != "alice" || msg.Body != "hi" || msg.Timestamp != "ts" {
		t.Fatalf("unexpected delivery: %+v", msg)
	}

	counts, _ := st.UnreadCounts(ctx, "bob")
	if len(counts.Private) != 0 {
		t.Fatalf("delivered message should be read, got %+v", counts.Private)
	}
}

func TestSendPrivateDroppedPushStaysUnread(t *testing.T) {
	r, presence, st := newTestRouter(t)
	ctx := context.Background()

	bob := newFakeConn("b")
	bob.setFull(true)
	presence.Bind(bob, "bob")

	if _, err := r.SendPrivate(ctx, "alice", "bob", "hi", "ts"); err != nil {
		t.Fatalf("send private: %v", err)
	}

	counts, _ := st.UnreadCounts(ctx, "bob")
	if len(counts.Private) != 1 {
		t.Fatalf("dropped push must leave message unread, got %+v", counts.Private)
	}
}

type recordingReceipts struct {
	ids []int64
}

func (r *recordingReceipts) Delivered(_ context.Context, id int64, _ string) {
	r.ids = append(r.ids, id)
}

func TestReceiptPolicyIsReplaceable(t *testing.T) {
	receipts := &recordingReceipts{}
	r, presence, st := newTestRouter(t, WithReceiptPolicy(receipts))
	ctx := context.Background()

	presence.Bind(newFakeConn("b"), "bob")
	id, err := r.SendPrivate(ctx, "alice", "bob", "hi", "ts")
	if err != nil {
		t.Fatalf("send private: %v", err)
	}

	if len(receipts.ids) != 1 || receipts.ids[0] != id {
		t.Fatalf("expected receipt for %d, got %v", id, receipts.ids)
	}
	counts, _ := st.UnreadCounts(ctx, "bob")
	if len(counts.Private) != 1 {
		t.Fatalf("custom policy did not mark read, message should stay unread: %+v", counts.Private)
	}
}

func TestSendPrivateValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()

	cases := []struct{ to, body string }{
		{"", "hi"},
		{"broadcast", "hi"},
		{"bob", ""},
	}
	for _, tc := range cases {
		if _, err := r.SendPrivate(ctx, "alice", tc.to, tc.body, ""); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("to=%q body=%q: expected ErrBadRequest, got %v", tc.to, tc.body, err)
		}
	}
}

func TestSendBroadcastSkipsSenderByDefault(t *testing.T) {
	r, presence, st := newTestRouter(t)
	ctx := context.Background()

	alice := newFakeConn("a")
	bob := newFakeConn("b")
	carol := newFakeConn("c")
	presence.Bind(alice, "alice")
	presence.Bind(bob, "bob")
	presence.Bind(carol, "carol")

	id, err := r.SendBroadcast(ctx, "alice", "hello", "ts")
	if err != nil {
		t.Fatalf("send broadcast: %v", err)
	}

	for _, c := range []*fakeConn{bob, carol} {
		events := c.received()
		if len(events) != 1 || events[0].Kind != EventBroadcastMessage || events[0].Message.ID != id {
			t.Fatalf("%s: expected broadcast push, got %+v", c.id, events)
		}
	}
	if got := alice.received(); len(got) != 0 {
		t.Fatalf("sender should not get an echo, got %+v", got)
	}

	history, err := st.History(ctx, "dave", store.BroadcastTarget)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || !history[0].IsBroadcast || history[0].ID != id {
		t.Fatalf("expected exactly one stored broadcast, got %+v", history)
	}
}

func TestSendBroadcastEchoOption(t *testing.T) {
	r, presence, _ := newTestRouter(t, WithBroadcastEcho(true))

	alice := newFakeConn("a")
	presence.Bind(alice, "alice")

	if _, err := r.SendBroadcast(context.Background(), "alice", "hello", "ts"); err != nil {
		t.Fatalf("send broadcast: %v", err)
	}
	if got := alice.received(); len(got) != 1 {
		t.Fatalf("expected echo to sender, got %+v", got)
	}
}

func TestSendFileBroadcastHistoryHasPlaceholderAndFetchReturnsBytes(t *testing.T) {
	r, presence, _ := newTestRouter(t)
	ctx := context.Background()

	bob := newFakeConn("b")
	presence.Bind(bob, "bob")

	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	id, err := r.SendFile(ctx, FileShare{
		From:      "alice",
		To:        store.BroadcastTarget,
		Filename:  "cat.png",
		Data:      data,
		MimeType:  "image/png",
		Timestamp: "ts",
	})
	if err != nil {
		t.Fatalf("send file: %v", err)
	}

	events := bob.received()
	if len(events) != 1 || events[0].Kind != EventFileReceive {
		t.Fatalf("expected file push, got %+v", events)
	}
	pushed := events[0].Message
	if pushed.To != store.BroadcastTarget || pushed.File == nil || !bytes.Equal(pushed.File.Data, data) {
		t.Fatalf("file push must carry bytes inline: %+v", pushed)
	}

	history, err := r.History(ctx, "bob", store.BroadcastTarget)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one entry, got %d", len(history))
	}
	entry := history[0]
	if !entry.HasFile() || entry.File.Name != "cat.png" || entry.Body != "Sent file: cat.png" {
		t.Fatalf("unexpected history entry: %+v", entry)
	}

	ref, got, err := r.FetchFile(ctx, id)
	if err != nil {
		t.Fatalf("fetch file: %v", err)
	}
	if ref.MimeType != "image/png" || !bytes.Equal(got, data) {
		t.Fatalf("fetched file mismatch: %+v %v", ref, got)
	}
}

func TestSendFilePrivateOffline(t *testing.T) {
	r, _, st := newTestRouter(t)
	ctx := context.Background()

	id, err := r.SendFile(ctx, FileShare{From: "alice", To: "bob", Filename: "notes.txt", Data: []byte("x"), MimeType: "text/plain"})
	if err != nil {
		t.Fatalf("send file: %v", err)
	}
	counts, _ := st.UnreadCounts(ctx, "bob")
	if len(counts.Private) != 1 {
		t.Fatalf("expected unread file message, got %+v", counts.Private)
	}
	ref, err := st.FileReference(ctx, id)
	if err != nil || ref.Name != "notes.txt" {
		t.Fatalf("unexpected file ref %+v: %v", ref, err)
	}
}

func TestFetchFileNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()

	plain, err := r.SendPrivate(ctx, "alice", "bob", "no file", "")
	if err != nil {
		t.Fatalf("send private: %v", err)
	}
	for _, id := range []int64{plain, 4242} {
		if _, _, err := r.FetchFile(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("id %d: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestStoreFailureIsReported(t *testing.T) {
	r, _, st := newTestRouter(t)
	_ = st.Close()

	_, err := r.SendBroadcast(context.Background(), "alice", "hello", "")
	if !errors.Is(err, ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if ce := errorFromErr(err); ce.Code != ErrCodeStoreFailure {
		t.Fatalf("expected store_failure code, got %+v", ce)
	}
}

// frozenReadStore serves history but cannot flip read flags.
type frozenReadStore struct {
	store.Store
}

func (f frozenReadStore) History(ctx context.Context, viewer, chatID string) ([]*store.Message, error) {
	msgs, err := f.Store.History(ctx, viewer, chatID)
	if err != nil {
		return nil, err
	}
	return msgs, fmt.Errorf("%w: disk I/O error", store.ErrMarkRead)
}

func TestHistoryMarkReadFailureStillReturnsMessages(t *testing.T) {
	st := newTestStore(t)
	r := NewRouter(frozenReadStore{st}, nil, NewPresence(), nil)
	ctx := context.Background()

	if _, err := r.SendPrivate(ctx, "alice", "bob", "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	for range 2 {
		history, err := r.History(ctx, "bob", "alice")
		if err != nil {
			t.Fatalf("history should survive a mark-read failure: %v", err)
		}
		if len(history) != 1 || history[0].Body != "hi" {
			t.Fatalf("unexpected history: %+v", history)
		}
	}
}

func TestUnreadAggregator(t *testing.T) {
	r, _, st := newTestRouter(t)
	ctx := context.Background()
	agg := NewUnreadAggregator(st)

	counts, err := agg.Counts(ctx, "bob")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Broadcast != 0 || counts.Private == nil || len(counts.Private) != 0 {
		t.Fatalf("expected empty counts, got %+v", counts)
	}

	_, _ = r.SendBroadcast(ctx, "alice", "all", "")
	_, _ = r.SendPrivate(ctx, "alice", "bob", "one", "")
	_, _ = r.SendPrivate(ctx, "carol", "bob", "two", "")
	_, _ = r.SendPrivate(ctx, "carol", "bob", "three", "")

	for range 2 {
		counts, err = agg.Counts(ctx, "bob")
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if counts.Broadcast != 1 || len(counts.Private) != 2 {
			t.Fatalf("unexpected counts: %+v", counts)
		}
	}

	if _, err := agg.Counts(ctx, ""); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty username, got %v", err)
	}
}
