// Package codec converts posts to and from their stream representation:
// UTF-8 JSON with snake_case field names and RFC3339 timestamps.
package codec

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/surgeproject/surge/internal/worker/generator"
)

func Marshal(post generator.Post) ([]byte, error) {
	data, err := json.Marshal(post)
	if err != nil {
		return nil, errors.Wrapf(err, "serializing post %s", post.Id)
	}
	return data, nil
}

// Unmarshal decodes a stream record back into a post. Records that decode but
// fail validation are rejected; downstream consumers never see them.
func Unmarshal(data []byte) (generator.Post, error) {
	var post generator.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return generator.Post{}, errors.Wrap(err, "deserializing post")
	}
	if err := post.Validate(); err != nil {
		return generator.Post{}, err
	}
	return post, nil
}
