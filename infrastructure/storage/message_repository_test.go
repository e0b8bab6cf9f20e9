package storage

import (
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// SetupTestDB initializes a temporary Badger instance for testing
func SetupTestDB(t *testing.T) (*badger.DB, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)

	return db, func() {
		db.Close()
	}
}

func newTestMessageRepository(t *testing.T) *MessageRepository {
	db, cleanup := SetupTestDB(t)
	repo, err := NewMessageRepository(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
		cleanup()
	})
	return repo
}

func text(from, to, content string) domain.NewMessage {
	return domain.NewMessage{SenderID: from, ReceiverID: to, Content: lo.ToPtr(content)}
}

func TestMessageRepository_Insert_AssignsIncreasingIdsAndTimes(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	// Given messages inserted back to back
	var previous domain.Message
	for i := 0; i < 20; i++ {
		msg, err := repo.Insert(text("alice", "bob", fmt.Sprintf("hello %d", i)))
		req.NoError(err)

		// Then ids and creation times strictly increase
		req.False(msg.IsRead)
		req.Equal(domain.TextMessage, msg.Type)
		if i > 0 {
			req.Greater(msg.ID, previous.ID)
			req.True(msg.CreatedAt.After(previous.CreatedAt))
		}
		previous = msg
	}

	fetched, err := repo.Get(previous.ID)
	req.NoError(err)
	req.Equal(previous, fetched)
}

func TestMessageRepository_Insert_RejectsInvalidMessages(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	_, err := repo.Insert(text("alice", "alice", "me"))
	req.ErrorIs(err, errors.ErrValidation)

	_, err = repo.Insert(domain.NewMessage{SenderID: "alice", ReceiverID: "bob"})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = repo.Get(404)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageRepository_History_NewestFirstWithCursor(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	// Given a conversation of 5 messages in both directions and some noise
	var inserted []domain.Message
	for i := 0; i < 5; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		msg, err := repo.Insert(text(from, to, fmt.Sprintf("m%d", i)))
		req.NoError(err)
		inserted = append(inserted, msg)
	}
	_, err := repo.Insert(text("alice", "carol", "noise"))
	req.NoError(err)

	// When reading the first page from either side
	page, err := repo.History("bob", "alice", nil, 0, 2)
	req.NoError(err)

	// Then the newest messages come first
	req.Len(page, 2)
	req.Equal(inserted[4].ID, page[0].ID)
	req.Equal(inserted[3].ID, page[1].ID)

	// When paging with the oldest returned timestamp
	older, err := repo.History("alice", "bob", lo.ToPtr(page[1].CreatedAt), 0, 10)
	req.NoError(err)

	// Then only strictly older messages are returned
	req.Equal([]domain.MessageID{inserted[2].ID, inserted[1].ID, inserted[0].ID},
		lo.Map(older, func(m domain.Message, _ int) domain.MessageID { return m.ID }))

	// And offset paging agrees
	offsetPage, err := repo.History("alice", "bob", nil, 2, 2)
	req.NoError(err)
	req.Equal(inserted[2].ID, offsetPage[0].ID)
	req.Equal(inserted[1].ID, offsetPage[1].ID)

	total, err := repo.Count("bob", "alice")
	req.NoError(err)
	req.Equal(5, total)
}

func TestMessageRepository_MarkRead_OnlyReceiverAndOnlyOnce(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	m1, err := repo.Insert(text("alice", "bob", "one"))
	req.NoError(err)
	m2, err := repo.Insert(text("alice", "bob", "two"))
	req.NoError(err)
	m3, err := repo.Insert(text("bob", "alice", "three"))
	req.NoError(err)

	// When the sender tries to mark its own message
	affected, err := repo.MarkRead([]domain.MessageID{m1.ID}, "alice")
	req.NoError(err)
	req.Empty(affected)

	// When the receiver marks everything, with a duplicate and a missing id
	affected, err = repo.MarkRead([]domain.MessageID{m1.ID, m2.ID, m2.ID, m3.ID, 999}, "bob")
	req.NoError(err)

	// Then only messages received by bob changed
	req.Len(affected, 2)
	for _, m := range affected {
		req.True(m.IsRead)
		req.Equal("bob", m.ReceiverID)
	}

	// And a second pass is a no-op
	affected, err = repo.MarkRead([]domain.MessageID{m1.ID, m2.ID}, "bob")
	req.NoError(err)
	req.Empty(affected)

	unread, err := repo.UnreadTotal("bob")
	req.NoError(err)
	req.Zero(unread)
	unread, err = repo.UnreadTotal("alice")
	req.NoError(err)
	req.Equal(1, unread)
}

func TestMessageRepository_MarkRead_ConcurrentReadersCountOnce(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	var ids []domain.MessageID
	for i := 0; i < 10; i++ {
		m, err := repo.Insert(text("alice", "bob", "ping"))
		req.NoError(err)
		ids = append(ids, m.ID)
	}

	// When several entry points mark the same messages at once
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			affected, err := repo.MarkRead(ids, "bob")
			if err != nil {
				return
			}
			mu.Lock()
			total += len(affected)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Then every message transitioned exactly once
	req.Equal(len(ids), total)
	unread, err := repo.UnreadTotal("bob")
	req.NoError(err)
	req.Zero(unread)
}

func TestMessageRepository_Snapshot_AndConversationRead(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	_, err := repo.Insert(text("alice", "bob", "one"))
	req.NoError(err)
	_, err = repo.Insert(text("alice", "bob", "two"))
	req.NoError(err)
	last, err := repo.Insert(text("bob", "alice", "three"))
	req.NoError(err)
	_, err = repo.Insert(text("carol", "bob", "four"))
	req.NoError(err)

	// Then the snapshot holds the latest message and bob's unread count
	snapshotLast, unread, err := repo.Snapshot("bob", "alice")
	req.NoError(err)
	req.Equal(last.ID, snapshotLast.ID)
	req.Equal(2, unread)

	counterparts, err := repo.Counterparts("bob")
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "carol"}, counterparts)

	// When bob reads the whole conversation with alice
	affected, err := repo.MarkConversationRead("bob", "alice")
	req.NoError(err)
	req.Len(affected, 2)

	// Then carol's message is still unread
	total, err := repo.UnreadTotal("bob")
	req.NoError(err)
	req.Equal(1, total)
}

func TestMessageRepository_Delete_OnlySender(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	msg, err := repo.Insert(text("alice", "bob", "oops"))
	req.NoError(err)

	_, err = repo.Delete(msg.ID, "bob")
	req.ErrorIs(err, errors.ErrAuthorization)

	deleted, err := repo.Delete(msg.ID, "alice")
	req.NoError(err)
	req.Equal(msg.ID, deleted.ID)

	_, err = repo.Get(msg.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = repo.Delete(msg.ID, "alice")
	req.ErrorIs(err, errors.ErrNotFound)

	// Then the indexes forgot it too
	count, err := repo.Count("alice", "bob")
	req.NoError(err)
	req.Zero(count)
	unread, err := repo.UnreadTotal("bob")
	req.NoError(err)
	req.Zero(unread)
}

func TestMessageRepository_Ping_ClosedDatabase(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	repo, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	req.NoError(repo.Ping())

	req.NoError(repo.Close())
	cleanup()

	req.ErrorIs(repo.Ping(), errors.ErrTransientStore)
}

func TestMessageRepository_History_BeforeEpoch(t *testing.T) {
	req := require.New(t)
	repo := newTestMessageRepository(t)

	_, err := repo.Insert(text("alice", "bob", "one"))
	req.NoError(err)

	messages, err := repo.History("alice", "bob", lo.ToPtr(time.Unix(0, 0)), 0, 10)
	req.NoError(err)
	req.Empty(messages)
}
