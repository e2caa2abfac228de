package admin

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

const payloadShutdown = "Shutdown"

// ExecuteSetupc asks the service to run setupc with Args in Cwd.
type ExecuteSetupc struct {
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

// Payload is either an ExecuteSetupc request or a shutdown request. On the
// wire it is {"ExecuteSetupc":{...}} or the string "Shutdown".
type Payload struct {
	Execute  *ExecuteSetupc
	Shutdown bool
}

// Envelope is the single request sent on a connection. ID correlates client
// and service logs and may be empty.
type Envelope struct {
	Token   string  `json:"token"`
	Payload Payload `json:"payload"`
	ID      string  `json:"id,omitempty"`
}

// Response is the single reply written on a connection.
type Response struct {
	Success bool    `json:"success"`
	Stdout  string  `json:"stdout"`
	Stderr  string  `json:"stderr"`
	Error   *string `json:"error"`
}

type executePayload struct {
	ExecuteSetupc *ExecuteSetupc `json:"ExecuteSetupc"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Shutdown {
		return json.Marshal(payloadShutdown)
	}
	if p.Execute == nil {
		return nil, errors.New("empty admin payload")
	}
	exec := *p.Execute
	if exec.Args == nil {
		exec.Args = []string{}
	}
	return json.Marshal(executePayload{ExecuteSetupc: &exec})
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		if name != payloadShutdown {
			return fmt.Errorf("unknown admin payload %q", name)
		}
		*p = Payload{Shutdown: true}
		return nil
	}

	var v executePayload
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decoding admin payload: %w", err)
	}
	if v.ExecuteSetupc == nil {
		return errors.New("unknown admin payload")
	}
	*p = Payload{Execute: v.ExecuteSetupc}
	return nil
}

func failure(msg string) Response {
	return Response{Error: &msg}
}

// Reason returns the text explaining a failed response.
func (r Response) Reason() string {
	if r.Error != nil && *r.Error != "" {
		return *r.Error
	}
	if r.Stderr != "" {
		return r.Stderr
	}
	return "admin service reported failure"
}
