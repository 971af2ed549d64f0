package jsonrpc

import (
	"encoding/json"
	"fmt"

	"eval_fpgaio/log"
)

// PrepareJSONResponse marshals v as one newline terminated line.
func PrepareJSONResponse(v interface{}) ([]byte, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		log.Errorf("err %v", err)
		return nil, err
	}
	return append(jsonResponse, '\n'), nil
}

// PrepareJSONRequest builds the wire form of a command.
func PrepareJSONRequest(command string, parameter interface{}) ([]byte, error) {
	return PrepareJSONResponse(APIRequest{Command: command, Parameter: parameter})
}

// parseParameter decodes the parameter member of a raw request into v.
func parseParameter(rawbuf []byte, v interface{}) error {
	wrapper := struct {
		Parameter json.RawMessage `json:"parameter"`
	}{}
	if err := json.Unmarshal(rawbuf, &wrapper); err != nil {
		return err
	}
	if len(wrapper.Parameter) == 0 || string(wrapper.Parameter) == "null" {
		return nil
	}
	if err := json.Unmarshal(wrapper.Parameter, v); err != nil {
		return fmt.Errorf("parameter: %w", err)
	}
	return nil
}
