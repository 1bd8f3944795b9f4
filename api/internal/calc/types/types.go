package types

// Variables: накопленные на клиенте привязки имя → значение.
type Variables map[string]Value

// Clone returns an independent copy; nil becomes an empty (non-nil) map.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge добавляет/перезаписывает значения из записей с assign=true.
// Возвращает число изменившихся привязок. Удалений не бывает.
func (v Variables) Merge(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if !a.Assign {
			continue
		}
		if old, ok := v[a.Expr]; ok && old.Equal(a.Result) {
			continue
		}
		v[a.Expr] = a.Result
		n++
	}
	return n
}

// Answer: нормализованная запись ответа по одному найденному выражению.
type Answer struct {
	Expr   string `json:"expr"`
	Result Value  `json:"result"`
	Assign bool   `json:"assign"`
}

// CalculateRequest: тело POST /calculate.
// llm_name: явный выбор провайдера (gemini|gpt), если не задан: берётся дефолт.
type CalculateRequest struct {
	Image      string    `json:"image"`
	DictOfVars Variables `json:"dict_of_vars"`
	LLMName    string    `json:"llm_name,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CalculateResponse: успешный ответ POST /calculate.
type CalculateResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Data    []Answer `json:"data"`
}

// ErrorResponse: тело любого не-2xx ответа.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
