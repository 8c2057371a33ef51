package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgeproject/surge/internal/worker/generator"
)

func TestMarshal_WireFieldNames(t *testing.T) {
	post := generator.Post{
		Id:        "0b0e0f9a",
		Timestamp: time.Date(2022, 8, 27, 12, 0, 0, 0, time.UTC),
		UserId:    "user_123456",
		Username:  "techguru42",
		Content:   "RT: BREAKING: Major tech announcement happening right now!",
		Hashtags:  []string{"#BreakingNews", "#AI"},
		Mentions:  []string{"@newsbot"},
		Location: &generator.GeoLocation{
			Latitude:  51.5074,
			Longitude: -0.1278,
			City:      "London",
			Country:   "UK",
		},
		EngagementScore: 4.2,
		PostType:        generator.PostTypeShare,
	}

	data, err := Marshal(post)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "user_123456", wire["user_id"])
	assert.Equal(t, "2022-08-27T12:00:00Z", wire["timestamp"])
	assert.Equal(t, 4.2, wire["engagement_score"])
	assert.Equal(t, "share", wire["post_type"])
	location, ok := wire["location"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "London", location["city"])
	assert.Equal(t, 51.5074, location["latitude"])
}

func TestMarshal_OmitsAbsentLocation(t *testing.T) {
	data, err := Marshal(generator.Post{
		Id:       "0b0e0f9a",
		UserId:   "user_123456",
		PostType: generator.PostTypeOriginal,
	})
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	_, present := wire["location"]
	assert.False(t, present)
}

func TestRoundTrip(t *testing.T) {
	g := generator.New(42)
	for phase := 1; phase <= 4; phase++ {
		original := g.Generate(phase, g.PickType(phase))

		data, err := Marshal(original)
		require.NoError(t, err)
		decoded, err := Unmarshal(data)
		require.NoError(t, err)

		assert.Equal(t, original, decoded)
	}
}

func TestUnmarshal_RejectsInvalidRecords(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"user_id": `,
		"missing user":     `{"id": "a", "post_type": "original"}`,
		"negative score":   `{"id": "a", "user_id": "u", "post_type": "original", "engagement_score": -3}`,
		"unknown type":     `{"id": "a", "user_id": "u", "post_type": "promoted"}`,
		"broken latitude":  `{"id": "a", "user_id": "u", "post_type": "reply", "location": {"latitude": 91, "longitude": 0, "city": "x", "country": "y"}}`,
		"broken longitude": `{"id": "a", "user_id": "u", "post_type": "reply", "location": {"latitude": 0, "longitude": -181, "city": "x", "country": "y"}}`,
	}
	for name, record := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(record))
			assert.Error(t, err)
		})
	}
}
