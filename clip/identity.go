package clip

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID derives the stable session identifier from the room id and the live
// start time. It is a name-based (version 5 style) UUID, so segments of the
// same broadcast processed independently and out of order converge to the
// same aggregate without any coordination service.
func ID(roomID int64, liveStart time.Time) string {
	name := fmt.Sprintf("%d%s", roomID, liveStart.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// ReplayTitle formats the official replay title used to pair a clip against
// the streamer's published VOD series by exact string equality. The pairing
// is brittle by design; an unpaired clip is an expected outcome.
func ReplayTitle(title string, start time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return fmt.Sprintf("【直播回放】%s %s", title, start.In(loc).Format("2006年01月02日15点场"))
}
