package session

import (
	"fmt"
	"time"
)

// Footer is written after each response.
func Footer(d time.Duration) string {
	return fmt.Sprintf("\r\n(took %.2fs)\r\n", d.Seconds())
}
