package pdfhttp

type generateBody struct {
	Content string `json:"content" form:"content"`
}

type healthResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Time string `json:"time"`
}

type errorResponse struct {
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
	TextCode string `json:"text_code,omitempty"`
}
