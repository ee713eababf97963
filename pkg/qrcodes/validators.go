package qrcodes

type ScanQuery struct {
	Code string `query:"code" json:"code" validate:"required" mod:"trim"`
}
