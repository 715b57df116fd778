package sdk

import (
	"context"
)

// GetJSON fetches path and decodes the payload into a T.
// It removes the need to declare a destination variable for one-off reads.
//
// Example:
//
//	type Profile struct {
//	    ID          string `json:"id"`
//	    DisplayName string `json:"display_name"`
//	}
//
//	profile, err := sdk.GetJSON[Profile](ctx, client, "/social/profile")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(profile.DisplayName)
func GetJSON[T any](ctx context.Context, c Client, path string) (T, error) {
	var out T
	if err := c.Get(ctx, path, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// PostJSON sends body to path and decodes the answer into a T.
//
// Example:
//
//	type Created struct {
//	    ID string `json:"id"`
//	}
//
//	created, err := sdk.PostJSON[Created](ctx, client, "/forum/discussions", map[string]string{
//	    "title": "Spring migration",
//	    "body":  "Who is in?",
//	})
func PostJSON[T any](ctx context.Context, c Client, path string, body interface{}) (T, error) {
	var out T
	if err := c.Post(ctx, path, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// PutJSON replaces the resource at path and decodes the answer into a T.
func PutJSON[T any](ctx context.Context, c Client, path string, body interface{}) (T, error) {
	var out T
	if err := c.Put(ctx, path, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
