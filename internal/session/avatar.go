package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-pokerplan/internal/blob"
	"github.com/npezzotti/go-pokerplan/internal/identity"
	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
	"github.com/npezzotti/go-pokerplan/internal/types"
)

// MaxAvatarSize is the upload size ceiling, 5 MiB.
const MaxAvatarSize = 5 << 20

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AvatarService runs the avatar pipeline: validate, store the blob,
// persist the new photo URL with the identity provider, then fan the
// URL out into every room the user participates in.
type AvatarService struct {
	errorSlot

	log      *log.Logger
	store    store.SessionStore
	blobs    blob.Store
	provider identity.Provider
	stats    stats.StatsProvider

	// now is stubbed in tests to pin generated blob names
	now func() time.Time
}

func NewAvatarService(logger *log.Logger, st store.SessionStore, blobs blob.Store, provider identity.Provider, sp stats.StatsProvider) *AvatarService {
	sp.RegisterMetric(stats.AvatarFanouts)

	return &AvatarService{
		log:      logger,
		store:    st,
		blobs:    blobs,
		provider: provider,
		stats:    sp,
		now:      time.Now,
	}
}

// Upload validates the payload, stores it, and records the resulting
// URL against the user's identity. The room fan-out afterwards is best
// effort: no per-room failure, and no total fan-out failure, ever fails
// the upload.
func (a *AvatarService) Upload(ctx context.Context, ident types.Identity, contentType string, size int64, r io.Reader) (string, error) {
	if ident.Zero() {
		return "", a.record(NewValidationError("identity is required"))
	}

	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", a.record(NewValidationError("unsupported file type, use JPG, PNG, GIF or WebP"))
	}

	if size <= 0 || size > MaxAvatarSize {
		return "", a.record(NewValidationError("file exceeds the 5MB size limit"))
	}

	name := fmt.Sprintf("avatars/%s/%d.%s", ident.Id, a.now().UnixMilli(), ext)
	photoURL, err := a.blobs.Put(ctx, name, contentType, io.LimitReader(r, MaxAvatarSize))
	if err != nil {
		a.log.Println("store avatar:", err)
		return "", a.record(err)
	}

	if err := a.provider.UpdatePhotoURL(ctx, ident.Id, photoURL); err != nil {
		a.log.Println("update profile photo:", err)
		return "", a.record(err)
	}

	a.fanOut(ctx, ident.Id, photoURL)

	return photoURL, nil
}

// fanOut rewrites the cached photo URL into every room in the store.
// There is no reverse index from user to rooms, so every room is tried
// and rooms the user never joined fail with not-found, which is
// swallowed. All updates are issued independently; one failing room
// never blocks the rest.
func (a *AvatarService) fanOut(ctx context.Context, userId, photoURL string) {
	rooms, err := a.store.ListRooms(ctx)
	if err != nil {
		a.log.Println("avatar fan-out, list rooms:", err)
		return
	}

	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(roomId string) {
			defer wg.Done()

			err := a.store.UpdateParticipantFields(ctx, roomId, userId, store.Fields{
				store.FieldUserPhotoURL: photoURL,
			})
			if err != nil && store.CodeOf(err) != store.CodeNotFound {
				a.log.Printf("avatar fan-out, room %q: %v", roomId, err)
			}
		}(room.Id)
	}

	wg.Wait()
	a.stats.Incr(stats.AvatarFanouts)
}
