package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Minute, p.Backoff(20))
	assert.Equal(t, 2*time.Second, p.Backoff(0))
}

func TestPermanent(t *testing.T) {
	base := errors.New("Topic not allowed")
	wrapped := fmt.Errorf("generate outline: %w", Permanent(base))

	assert.True(t, IsPermanent(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestContextPayloadAccessors(t *testing.T) {
	job := &types.JobRun{Payload: datatypes.JSON([]byte(`{"course_id":"9a1f2d1e-3a8b-4a5e-9a55-1b7c2c1f0e11","topic":" go ","trace_id":"t-1"}`))}
	jc := NewContext(context.Background(), nil, job, nil, nil)

	id, ok := jc.PayloadUUID("course_id")
	assert.True(t, ok)
	assert.Equal(t, "9a1f2d1e-3a8b-4a5e-9a55-1b7c2c1f0e11", id.String())
	assert.Equal(t, "go", jc.PayloadString("topic"))
	_, ok = jc.PayloadUUID("missing")
	assert.False(t, ok)

	var p struct {
		Topic string `json:"topic"`
	}
	assert.NoError(t, jc.DecodePayload(&p))
	assert.Equal(t, " go ", p.Topic)
}
