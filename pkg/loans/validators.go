package loans

type BorrowPayload struct {
	Days *int `json:"days" form:"days"`
}
