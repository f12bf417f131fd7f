package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newTicketCode builds a short human-readable booking reference. Uniqueness
// is enforced by the storage layer, not by the generator.
func newTicketCode(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(raw[:10]))
}
