package klaviyo

import "fmt"

// List is a mailing list on the Klaviyo side, reduced to the two fields
// the UI needs.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is the normalized shape of every upstream failure. Message
// comes from the first error detail in the upstream body when there is
// one; StatusCode is 500 when the upstream never answered.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("klaviyo: %s (status %d)", e.Message, e.StatusCode)
}

// listCollection is the JSON:API response for GET /api/lists.
type listCollection struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

// profileRequest is the body for the profile upsert call.
type profileRequest struct {
	Data profileData `json:"data"`
}

type profileData struct {
	Type       string            `json:"type"`
	Attributes profileAttributes `json:"attributes"`
}

type profileAttributes struct {
	Email string `json:"email"`
}

// profileResponse carries the upstream id of the upserted profile.
type profileResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// relationshipRequest attaches profiles to a list.
type relationshipRequest struct {
	Data []relationshipMember `json:"data"`
}

type relationshipMember struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// errorResponse is the upstream error body: an array of error objects,
// each with a detail string.
type errorResponse struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}
