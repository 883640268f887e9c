package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/limiter"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSendsSnapshotAndAnnouncesNewParticipant(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{Name: "standup", EnableXP: true, TimeLimit: 30})

	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	assert.Equal(t, 1, alice.count(event.TypeUserJoined))
	assert.Equal(t, 0, bob.count(event.TypeUserJoined), "joiner is not told about itself")

	snap := bob.last(event.TypeRoomJoined)
	require.NotNil(t, snap)
	data := snap.Data.(event.RoomJoinedData)
	assert.Equal(t, r.AccessKey, data.RoomKey)
	assert.Len(t, data.Participants, 2)
	assert.Equal(t, "standup", data.RoomInfo.Name)
	assert.Equal(t, "Group", data.RoomInfo.Type)
	assert.True(t, data.RoomInfo.EnableXP)
	require.NotNil(t, data.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *data.ExpiresAt)
}

func TestJoinValidationTouchesNothing(t *testing.T) {
	f := newFixture(t)
	conn := newConn()

	err := f.c.Join(context.Background(), "not-a-key", member("alice"), conn)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.c.Join(context.Background(), "AAAA-BBBB-CCCC", member("alice"), conn)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Empty(t, f.registry.Rooms())
	assert.Empty(t, conn.events)
}

func TestCapacityBound(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{MaxParticipants: 2})

	f.join(t, r.AccessKey, member("alice"))
	f.join(t, r.AccessKey, member("bob"))

	err := f.c.Join(context.Background(), r.AccessKey, member("carol"), newConn())
	assert.ErrorIs(t, err, ErrRoomFull)

	// existing participants still get in on a second tab
	f.join(t, r.AccessKey, member("bob"))

	assert.Len(t, f.stored(t, r.AccessKey).Participants, 2)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{MaxParticipants: 3})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, all int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.c.Join(context.Background(), r.AccessKey, member(fmt.Sprintf("u%d", i)), newConn())
			mu.Lock()
			defer mu.Unlock()
			all++
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, ErrRoomFull)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, all)
	assert.Equal(t, 3, ok)
	assert.Len(t, f.stored(t, r.AccessKey).Participants, 3)
}

func TestDoubleJoinIsOneParticipantAndOneAnnouncement(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))

	tab1 := f.join(t, r.AccessKey, member("bob"))
	tab2 := f.join(t, r.AccessKey, member("bob"))

	assert.Equal(t, 1, observer.count(event.TypeUserJoined))
	assert.Equal(t, 0, tab1.count(event.TypeUserJoined))
	assert.Equal(t, 1, tab2.count(event.TypeRoomJoined))

	stored := f.stored(t, r.AccessKey)
	assert.Len(t, stored.Participants, 2)
}

func TestGuestsRejectedWhenRoomDisallowsThem(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{
		Settings: &room.SettingsPatch{AllowGuests: boolPtr(false)},
	})

	err := f.c.Join(context.Background(), r.AccessKey, guest("mallory"), newConn())
	assert.ErrorIs(t, err, ErrForbidden)

	f.join(t, r.AccessKey, member("bob"))
}

func TestJoinSaveFailureRollsBackRegistration(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))

	f.rooms.failing.Store(true)
	conn := newConn()
	err := f.c.Join(context.Background(), r.AccessKey, member("bob"), conn)
	f.rooms.failing.Store(false)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, registered := f.registry.UserOf(r.AccessKey, conn)
	assert.False(t, registered)
	assert.Equal(t, 0, observer.count(event.TypeUserJoined))
	assert.Len(t, f.stored(t, r.AccessKey).Participants, 1)
}

func TestSecondTabDisconnectKeepsUser(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))
	tab1 := f.join(t, r.AccessKey, member("bob"))
	tab2 := f.join(t, r.AccessKey, member("bob"))

	f.c.Disconnect(r.AccessKey, tab1)

	assert.Never(t, func() bool { return observer.count(event.TypeUserLeft) > 0 }, 3*testGrace, 5*time.Millisecond)
	assert.True(t, f.stored(t, r.AccessKey).IsParticipant("user_bob"))

	f.c.Disconnect(r.AccessKey, tab2)

	require.Eventually(t, func() bool { return observer.count(event.TypeUserLeft) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return observer.count(event.TypeUserLeft) > 1 }, 3*testGrace, 5*time.Millisecond)
	assert.False(t, f.stored(t, r.AccessKey).IsParticipant("user_bob"))

	left := observer.last(event.TypeUserLeft).Data.(event.UserPresenceData)
	assert.Equal(t, "user_bob", left.UserID)
	assert.Equal(t, "bob", left.Username)
}

func TestReconnectWithinGraceIsSilent(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))
	tab := f.join(t, r.AccessKey, member("bob"))
	require.Equal(t, 1, observer.count(event.TypeUserJoined))

	f.c.Disconnect(r.AccessKey, tab)
	require.True(t, f.reaper.Pending(r.AccessKey, "user_bob"), "drop schedules a removal")
	saves := f.rooms.saves.Load()

	f.join(t, r.AccessKey, member("bob"))
	assert.False(t, f.reaper.Pending(r.AccessKey, "user_bob"), "rejoin cancels the removal")

	assert.Never(t, func() bool { return observer.count(event.TypeUserLeft) > 0 }, 3*testGrace, 5*time.Millisecond)
	assert.Equal(t, 1, observer.count(event.TypeUserJoined), "reconnect is not a new join")
	assert.Equal(t, saves, f.rooms.saves.Load(), "nothing is written once the removal is cancelled")
	assert.True(t, f.stored(t, r.AccessKey).IsParticipant("user_bob"))
}

func TestLeaveAfterDeadlineExpiresRoom(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{TimeLimit: 1})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.c.Leave(context.Background(), r.AccessKey, bob))

	assert.Equal(t, 1, alice.count(event.TypeRoomExpired))
	assert.Equal(t, 0, alice.count(event.TypeUserLeft), "an expired room does not announce departures")

	stored := f.stored(t, r.AccessKey)
	assert.False(t, stored.IsActive)
	assert.True(t, stored.IsParticipant("user_bob"), "participant list is frozen at expiry")
}

func TestLeaveIsImmediate(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	require.NoError(t, f.c.Leave(context.Background(), r.AccessKey, bob))

	assert.Equal(t, 1, observer.count(event.TypeUserLeft))
	assert.Equal(t, 0, bob.count(event.TypeUserLeft), "leaver is already gone")
	assert.False(t, f.stored(t, r.AccessKey).IsParticipant("user_bob"))

	require.NoError(t, f.c.Leave(context.Background(), r.AccessKey, bob), "second leave is a no-op")
	assert.Equal(t, 1, observer.count(event.TypeUserLeft))
}

func TestSendMessageBroadcastsPersistedMessage(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{EnableXP: true})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	m, err := f.c.SendMessage(context.Background(), r.AccessKey, member("bob"), "  hello there ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", m.Content)

	for _, conn := range []*recordingConn{alice, bob} {
		got := conn.last(event.TypeReceiveMessage)
		require.NotNil(t, got, "every connection gets the message, sender included")
		data := got.Data.(event.Message)
		assert.Equal(t, m.ID.String(), data.ID)
		assert.Equal(t, "user_bob", data.UserID)
		assert.Equal(t, m.CreatedAt, data.Timestamp)
	}

	stored, err := f.messages.FindByRoom(context.Background(), r.AccessKey, 10, message.OldestFirst)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, m.ID, stored[0].ID)

	p, _ := f.stored(t, r.AccessKey).Participant("user_bob")
	assert.Equal(t, 1, p.XP)
}

func TestSendMessageOrderMatchesPersistence(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	observer := f.join(t, r.AccessKey, member("alice"))
	f.join(t, r.AccessKey, member("bob"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := member("alice")
			if i%2 == 0 {
				sender = member("bob")
			}
			_, err := f.c.SendMessage(context.Background(), r.AccessKey, sender, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.messages.FindByRoom(context.Background(), r.AccessKey, 50, message.OldestFirst)
	require.NoError(t, err)
	got := observer.of(event.TypeReceiveMessage)
	require.Len(t, got, len(stored))
	for i := range stored {
		assert.Equal(t, stored[i].ID.String(), got[i].Data.(event.Message).ID)
	}
}

func TestSendMessageAppendFailure(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{EnableXP: true})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	f.messages.Fail = errors.New("connection refused")
	m, err := f.c.SendMessage(context.Background(), r.AccessKey, member("bob"), "lost")
	f.messages.Fail = nil

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, m)
	assert.Equal(t, 0, alice.count(event.TypeReceiveMessage), "nothing is broadcast that was not stored")
	assert.Equal(t, 0, bob.count(event.TypeReceiveMessage))

	p, _ := f.stored(t, r.AccessKey).Participant("user_bob")
	assert.Equal(t, 0, p.XP)
}

func TestSendMessageXPFailureStillDelivers(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{EnableXP: true})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	f.rooms.failing.Store(true)
	m, err := f.c.SendMessage(context.Background(), r.AccessKey, member("bob"), "still here")
	f.rooms.failing.Store(false)

	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "still here", m.Content)
	assert.Equal(t, 1, alice.count(event.TypeReceiveMessage))
	assert.Equal(t, 1, bob.count(event.TypeReceiveMessage))

	n, err := f.messages.Count(context.Background(), r.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _ := f.stored(t, r.AccessKey).Participant("user_bob")
	assert.Equal(t, 0, p.XP, "award was lost with the failed write")
}

func TestStatsFollowCreatesJoinsAndXP(t *testing.T) {
	f := newFixture(t)
	f.account(t, member("alice"))
	f.account(t, member("bob"))

	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{EnableXP: true})
	f.join(t, r.AccessKey, member("alice"))
	f.join(t, r.AccessKey, member("bob"))
	f.join(t, r.AccessKey, member("bob"))
	f.join(t, r.AccessKey, member("carol"))

	for i := 0; i < 2; i++ {
		_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("bob"), "hi")
		require.NoError(t, err)
	}

	alice := f.profile(t, member("alice"))
	assert.Equal(t, 1, alice.RoomsCreated)
	assert.Equal(t, 0, alice.RoomsJoined, "the creator's own join is not counted")

	bob := f.profile(t, member("bob"))
	assert.Equal(t, 0, bob.RoomsCreated)
	assert.Equal(t, 1, bob.RoomsJoined, "second tab is not a new join")
	assert.Equal(t, 2, bob.TotalXP)
}

func TestSendMessageRejectsBadContent(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	alice := f.join(t, r.AccessKey, member("alice"))

	_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.c.SendMessage(context.Background(), r.AccessKey, member("mallory"), "hi")
	assert.ErrorIs(t, err, ErrForbidden, "only participants can post")

	assert.Equal(t, 0, alice.count(event.TypeReceiveMessage))
	n, err := f.messages.Count(context.Background(), r.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Config) {
		d.Limiter = limiter.NewManager(limiter.NewLocalSlidingWindow(), 2, time.Minute)
	})
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	f.join(t, r.AccessKey, member("alice"))

	for i := 0; i < 2; i++ {
		_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), "hi")
		require.NoError(t, err)
	}
	_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), "hi")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestJoinSnapshotCarriesLatestHistory(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	f.join(t, r.AccessKey, member("alice"))

	for i := 0; i < 55; i++ {
		_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	bob := f.join(t, r.AccessKey, member("bob"))
	data := bob.last(event.TypeRoomJoined).Data.(event.RoomJoinedData)
	require.Len(t, data.Messages, 50)
	assert.Equal(t, "m5", data.Messages[0].Content)
	assert.Equal(t, "m54", data.Messages[49].Content)
}

func TestTypingGoesToOthersOnly(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	f.c.Typing(r.AccessKey, member("alice"), alice, true)
	assert.Equal(t, 0, alice.count(event.TypeUserTyping))
	require.Equal(t, 1, bob.count(event.TypeUserTyping))
	assert.True(t, bob.last(event.TypeUserTyping).Data.(event.UserTypingData).IsTyping)

	// identity must match the connection
	f.c.Typing(r.AccessKey, member("mallory"), alice, true)
	assert.Equal(t, 1, bob.count(event.TypeUserTyping))
}

func TestBroadcastSkipsFailingConnection(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, member("alice"), room.CreateRoomRequest{})
	alice := f.join(t, r.AccessKey, member("alice"))
	bob := f.join(t, r.AccessKey, member("bob"))

	bob.mu.Lock()
	bob.fail = errors.New("send buffer full")
	bob.mu.Unlock()

	_, err := f.c.SendMessage(context.Background(), r.AccessKey, member("alice"), "still works")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.count(event.TypeReceiveMessage))
}
