package message_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	messageDto "github.com/vargamihaly/bottlebuddy/internal/modules/message/dto"
	messageRepo "github.com/vargamihaly/bottlebuddy/internal/modules/message/repository"
	message "github.com/vargamihaly/bottlebuddy/internal/modules/message/service"
	"github.com/vargamihaly/bottlebuddy/internal/testutil"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/ratelimiter"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
	"gorm.io/gorm"
)

// participants lets the listing owner and the volunteer in.
type participants struct {
	db *gorm.DB
}

func (p participants) Participants(ctx context.Context, userID, requestID uuid.UUID) (*entity.PickupRequest, *entity.BottleListing, error) {
	var r entity.PickupRequest
	if err := p.db.Preload("Listing").First(&r, "id = ?", requestID).Error; err != nil {
		return nil, nil, apperror.FromDB(err)
	}
	if userID != r.VolunteerID && userID != r.Listing.OwnerID {
		return nil, nil, apperror.ErrForbidden
	}
	return &r, r.Listing, nil
}

type frames struct {
	mu   sync.Mutex
	sent []messageDto.Frame
	err  error
}

func (f *frames) Broadcast(_ context.Context, frame messageDto.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return f.err
}

func (f *frames) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fr := range f.sent {
		out = append(out, fr.Type)
	}
	return out
}

type images struct{}

func (images) UploadImage(_ context.Context, r io.Reader, folder, fileName string) (string, error) {
	_, err := io.ReadAll(r)
	return "https://img.example.com/" + folder + "/" + fileName, err
}

func (images) DeleteImage(context.Context, string) error { return nil }

type conversation struct {
	svc       message.Service
	notifier  *frames
	owner     *entity.User
	volunteer *entity.User
	stranger  *entity.User
	request   *entity.PickupRequest
}

func newConversation(t *testing.T) *conversation {
	db := testutil.NewDB(t)
	notifier := &frames{}
	owner := testutil.CreateUser(t, db, "owner")
	volunteer := testutil.CreateUser(t, db, "volunteer")
	stranger := testutil.CreateUser(t, db, "stranger")
	listing := testutil.CreateListing(t, db, owner.ID, "10", 50)
	request := &entity.PickupRequest{ListingID: listing.ID, VolunteerID: volunteer.ID, Status: entity.PickupRequestStatusPending}
	require.NoError(t, db.Create(request).Error)

	svc := message.NewService(messageRepo.NewRepository(db), participants{db: db}, notifier, images{}, ratelimiter.New(nil), message.Config{UploadFolder: "bb"})
	return &conversation{svc: svc, notifier: notifier, owner: owner, volunteer: volunteer, stranger: stranger, request: request}
}

func TestSendMessageValidation(t *testing.T) {
	c := newConversation(t)
	ctx := context.Background()
	img := func() *storage.Upload {
		return &storage.Upload{Reader: strings.NewReader("data"), FileName: "bottles.jpg", Size: 4}
	}

	cases := []struct {
		name    string
		content string
		image   *storage.Upload
		wantErr error
	}{
		{"empty", "   ", nil, apperror.ErrValidation},
		{"markup only", "<script>alert(1)</script>", nil, apperror.ErrValidation},
		{"both", "hello", img(), apperror.ErrValidation},
		{"too long", strings.Repeat("é", messageDto.MaxContentLength+1), nil, apperror.ErrValidation},
		{"max length", strings.Repeat("é", messageDto.MaxContentLength), nil, nil},
		{"image only", "", img(), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.svc.SendMessage(ctx, c.volunteer.ID, c.request.ID, messageDto.SendMessageRequest{Content: tc.content}, tc.image)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := c.svc.SendMessage(ctx, c.stranger.ID, c.request.ID, messageDto.SendMessageRequest{Content: "hi"}, nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestConversationFlow(t *testing.T) {
	c := newConversation(t)
	ctx := context.Background()

	sent, err := c.svc.SendMessage(ctx, c.volunteer.ID, c.request.ID, messageDto.SendMessageRequest{Content: " <b>On my way</b> "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "On my way", sent.Content)
	assert.False(t, sent.IsRead)

	photo, err := c.svc.SendMessage(ctx, c.volunteer.ID, c.request.ID, messageDto.SendMessageRequest{}, &storage.Upload{Reader: strings.NewReader("x"), FileName: "door.png"})
	require.NoError(t, err)
	require.NotNil(t, photo.ImageURL)
	assert.Equal(t, "https://img.example.com/bb/messages/door.png", *photo.ImageURL)

	_, err = c.svc.SendMessage(ctx, c.owner.ID, c.request.ID, messageDto.SendMessageRequest{Content: "Thanks"}, nil)
	require.NoError(t, err)

	unread, err := c.svc.UnreadCount(ctx, c.owner.ID, c.request.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	updated, err := c.svc.MarkConversationRead(ctx, c.owner.ID, c.request.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	unread, err = c.svc.UnreadCount(ctx, c.volunteer.ID, c.request.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread, "the owner's own message stays unread for the volunteer")

	page, err := c.svc.ListMessages(ctx, c.owner.ID, c.request.ID, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, sent.ID, page.Data[0].ID)
	assert.True(t, page.Data[0].IsRead)
	assert.NotNil(t, page.Data[0].ReadAt)
	assert.False(t, page.Data[2].IsRead)

	_, err = c.svc.ListMessages(ctx, c.stranger.ID, c.request.ID, commonDto.PageQuery{})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, c.svc.BroadcastTyping(ctx, c.owner.ID, c.request.ID))
	assert.ErrorIs(t, c.svc.BroadcastTyping(ctx, c.stranger.ID, c.request.ID), apperror.ErrForbidden)

	assert.Equal(t, []string{
		messageDto.FrameMessage, messageDto.FrameMessage, messageDto.FrameMessage,
		messageDto.FrameRead, messageDto.FrameTyping,
	}, c.notifier.types())
}

func TestBroadcastFailureKeepsMessage(t *testing.T) {
	c := newConversation(t)
	c.notifier.err = assert.AnError

	msg, err := c.svc.SendMessage(context.Background(), c.volunteer.ID, c.request.ID, messageDto.SendMessageRequest{Content: "still here"}, nil)
	require.NoError(t, err)

	page, err := c.svc.ListMessages(context.Background(), c.owner.ID, c.request.ID, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, msg.ID, page.Data[0].ID)
}
