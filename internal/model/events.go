package model

// TradeEventData is the decoded pool Trade event. Base and FYTokens are
// signed from the trader's point of view.
type TradeEventData struct {
	Maturity uint32 `json:"maturity"`
	From     string `json:"from"`
	To       string `json:"to"`
	Base     string `json:"base"`
	FYTokens string `json:"fy_tokens"`
}
