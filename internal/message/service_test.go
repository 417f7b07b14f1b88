package message

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/shared"
)

type stubStore struct {
	nextID    int64
	messages  map[int64]*Message
	directs   map[int64]*DirectMessage
	insertErr error
}

func newStubStore() *stubStore {
	return &stubStore{nextID: 100, messages: map[int64]*Message{}, directs: map[int64]*DirectMessage{}}
}

func (s *stubStore) Insert(_ context.Context, m *Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	m.ID = s.nextID
	s.messages[m.ID] = m
	return nil
}

func (s *stubStore) Find(_ context.Context, id int64) (*Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

func (s *stubStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.messages[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *stubStore) InsertDirect(_ context.Context, m *DirectMessage) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	m.ID = s.nextID
	s.directs[m.ID] = m
	return nil
}

func (s *stubStore) FindDirect(_ context.Context, id int64) (*DirectMessage, error) {
	m, ok := s.directs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

func (s *stubStore) DeleteDirect(_ context.Context, id int64) error {
	if _, ok := s.directs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.directs, id)
	return nil
}

type stubChannels struct {
	channels map[int64]*channel.Channel
}

func (s *stubChannels) FindChannel(_ context.Context, id int64) (*channel.Channel, error) {
	ch, ok := s.channels[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ch, nil
}

type stubMembers struct {
	members map[int64]*member.Member // keyed by user ID
	granted map[int64]uint64         // user ID -> channel permission mask
}

func (s *stubMembers) FindByUser(_ context.Context, userID, _ int64) (*member.Member, error) {
	m, ok := s.members[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

func (s *stubMembers) HasChannelPermission(_ context.Context, m *member.Member, _ *channel.Channel, perm perms.Permission) (bool, error) {
	return perms.Has(s.granted[m.UserID], perm), nil
}

type stubState struct {
	bumps map[int64]int64
}

func (s *stubState) Bump(_ context.Context, channelID int64) (int64, error) {
	if s.bumps == nil {
		s.bumps = map[int64]int64{}
	}
	s.bumps[channelID]++
	return s.bumps[channelID], nil
}

type relayed struct {
	channelID int64
	event     string
}

type stubHub struct {
	channelEvents []relayed
	directTargets []int64
	deleteTargets []int64
}

func (s *stubHub) RelayMessage(channelID int64, _ any) {
	s.channelEvents = append(s.channelEvents, relayed{channelID, "relay"})
}

func (s *stubHub) NotifyMessageDeletion(channelID int64, _ any) {
	s.channelEvents = append(s.channelEvents, relayed{channelID, "delete"})
}

func (s *stubHub) RelayDirectMessage(_ context.Context, _ json.RawMessage, targetUserID int64) {
	s.directTargets = append(s.directTargets, targetUserID)
}

func (s *stubHub) NotifyDirectMessageDeletion(_ context.Context, _ json.RawMessage, targetUserID int64) {
	s.deleteTargets = append(s.deleteTargets, targetUserID)
}

type fixture struct {
	svc      *Service
	store    *stubStore
	state    *stubState
	hub      *stubHub
	members  *stubMembers
	channels *stubChannels
}

func newFixture() *fixture {
	store := newStubStore()
	channels := &stubChannels{channels: map[int64]*channel.Channel{
		3: {ID: 3, PlanetID: 1, Name: "general"},
	}}
	members := &stubMembers{
		members: map[int64]*member.Member{
			9:  {ID: 90, PlanetID: 1, UserID: 9},
			10: {ID: 91, PlanetID: 1, UserID: 10},
		},
		granted: map[int64]uint64{
			9:  perms.ChannelView.Value | perms.ChannelPostMessages.Value,
			10: perms.ChannelView.Value | perms.ChannelManageMessages.Value,
		},
	}
	state := &stubState{}
	hub := &stubHub{}
	svc := NewService(store, channels, members, state, hub, nil)
	svc.WithClock(clock.NewMock())
	return &fixture{svc: svc, store: store, state: state, hub: hub, members: members, channels: channels}
}

func TestPostBumpsStateAndRelays(t *testing.T) {
	f := newFixture()

	msg, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "hello"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, int64(1), msg.PlanetID)

	assert.Equal(t, int64(1), f.state.bumps[3], "one bump per accepted message")
	require.Len(t, f.hub.channelEvents, 1)
	assert.Equal(t, relayed{3, "relay"}, f.hub.channelEvents[0])
}

func TestPostRequiresPostPermission(t *testing.T) {
	f := newFixture()
	f.members.granted[9] = perms.ChannelView.Value

	_, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "hello"})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.Zero(t, f.state.bumps[3], "rejected messages never bump state")
	assert.Empty(t, f.hub.channelEvents)
}

func TestPostValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Post(ctx, 9, PostInput{ChannelID: 3, Content: "   "})
	assert.ErrorIs(t, err, shared.ErrValidation, "blank content with no embed")

	_, err = f.svc.Post(ctx, 9, PostInput{ChannelID: 3, Content: strings.Repeat("x", MaxContentLength+1)})
	assert.ErrorIs(t, err, shared.ErrValidation, "content over limit")

	_, err = f.svc.Post(ctx, 9, PostInput{ChannelID: 3, EmbedData: strings.Repeat("x", MaxEmbedLength+1)})
	assert.ErrorIs(t, err, shared.ErrValidation, "embed over limit")

	_, err = f.svc.Post(ctx, 9, PostInput{ChannelID: 3, EmbedData: `{"kind":"poll"}`})
	assert.NoError(t, err, "embed-only message is valid")
}

func TestPostUnknownChannel(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 404, Content: "hi"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostNonMember(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Post(context.Background(), 77, PostInput{ChannelID: 3, Content: "hi"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteByAuthor(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "oops"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), 9, msg.ID))
	_, err = f.store.Find(context.Background(), msg.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, relayed{3, "delete"}, f.hub.channelEvents[len(f.hub.channelEvents)-1])
}

func TestDeleteByModeratorNeedsManageMessages(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "spam"})
	require.NoError(t, err)

	// User 10 holds manage-messages, user 9's message is fair game.
	require.NoError(t, f.svc.Delete(context.Background(), 10, msg.ID))
}

func TestDeleteByStrangerDenied(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "keep"})
	require.NoError(t, err)

	f.members.members[11] = &member.Member{ID: 92, PlanetID: 1, UserID: 11}
	f.members.granted[11] = perms.ChannelView.Value

	err = f.svc.Delete(context.Background(), 11, msg.ID)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = f.store.Find(context.Background(), msg.ID)
	assert.NoError(t, err, "denied delete leaves the message intact")
}

func TestPostDirectRelaysBothParties(t *testing.T) {
	f := newFixture()

	msg, err := f.svc.PostDirect(context.Background(), 9, DirectPostInput{TargetUserID: 42, Content: "psst"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.ElementsMatch(t, []int64{42, 9}, f.hub.directTargets)
}

func TestPostDirectValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.PostDirect(ctx, 9, DirectPostInput{TargetUserID: 9, Content: "hi"})
	assert.ErrorIs(t, err, shared.ErrValidation, "self targeting")

	_, err = f.svc.PostDirect(ctx, 9, DirectPostInput{TargetUserID: 0, Content: "hi"})
	assert.ErrorIs(t, err, shared.ErrValidation, "missing target")
}

func TestDeleteDirectOnlyAuthor(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.PostDirect(context.Background(), 9, DirectPostInput{TargetUserID: 42, Content: "psst"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteDirect(context.Background(), 42, msg.ID), shared.ErrPermissionDenied)

	require.NoError(t, f.svc.DeleteDirect(context.Background(), 9, msg.ID))
	assert.ElementsMatch(t, []int64{42, 9}, f.hub.deleteTargets)
}

func TestPostStorageFailure(t *testing.T) {
	f := newFixture()
	f.store.insertErr = assert.AnError

	_, err := f.svc.Post(context.Background(), 9, PostInput{ChannelID: 3, Content: "hi"})
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Empty(t, f.hub.channelEvents)
}
