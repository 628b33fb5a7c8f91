package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// updateStatusIf moves a row to status `to` only while its current status is one of `from`.
// An empty `from` matches any status other than `to`. It reports whether a row changed.
func updateStatusIf(tx *gorm.DB, model interface{}, id uuid.UUID, from []string, to string) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	q := tx.Model(model).Where("id = ?", id)
	if len(from) == 1 {
		q = q.Where("status = ?", from[0])
	} else if len(from) > 1 {
		q = q.Where("status IN ?", from)
	} else {
		q = q.Where("status <> ?", to)
	}
	res := q.Updates(map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
