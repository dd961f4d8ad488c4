package outbreak

import (
	"context"
	"encoding/json"
	"fmt"
)

// publishEvent serializes the event for the surveillance feed. Events are
// keyed by their ~1.1 km grid cell so downstream consumers see each
// neighborhood's reports in partition order.
func publishEvent(ctx context.Context, p Publisher, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbreak event: %w", err)
	}
	key := fmt.Sprintf("%.2f:%.2f", e.Lat, e.Lng)
	return p.Publish(ctx, key, value)
}
