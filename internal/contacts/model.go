package contacts

import (
	"time"

	"github.com/google/uuid"
)

// Kind separates people who only ever messaged us from known records
// (students, staff) linked by the dashboards.
const (
	KindProspect = "PROSPECT"
	KindKnown    = "KNOWN"
)

// Contact is one person reachable over a messaging channel. The phone number
// is unique per channel and is the join key for conversations and messages.
type Contact struct {
	ID          uuid.UUID
	Channel     string
	PhoneE164   string
	DisplayName string
	Kind        string
	CreatedAt   time.Time
}
