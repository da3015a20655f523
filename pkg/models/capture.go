package models

// CapturedCode is one scannable code found in a capture photograph.
type CapturedCode struct {
	Text string `json:"text"`
	Area int    `json:"area"`
	Left int    `json:"left"`
}

// CapturedPair is the ordered result of decoding a capture photograph.
// The leftmost code is the container identifier, the rightmost the item
// identifier. With a single code only the item role is assigned.
type CapturedPair struct {
	ContainerCode string `json:"container_code,omitempty"`
	ItemCode      string `json:"item_code"`
}
