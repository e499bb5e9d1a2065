package token

// Response ensures consistent formatting for JSON APIs.
type Response struct {
	ClientToken string `json:"client_token"`
}
