// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hsvisor

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionKind is the kind of corrective action a monitor entry requests.
type ActionKind uint8

const (
	NoAction ActionKind = iota
	Alert
	AppRestart
	AppDelete
	ProcessorReset
	SendMessage
)

func (k ActionKind) String() string {
	switch k {
	case NoAction:
		return "none"
	case Alert:
		return "alert"
	case AppRestart:
		return "restart"
	case AppDelete:
		return "delete"
	case ProcessorReset:
		return "reset"
	case SendMessage:
		return "message"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Action is a validated action.  Message is only meaningful for
// SendMessage, where it indexes the message action table.
type Action struct {
	Kind    ActionKind
	Message int
}

func (a Action) String() string {
	if a.Kind == SendMessage {
		return fmt.Sprintf("message:%d", a.Message)
	}
	return a.Kind.String()
}

// ActionCode is the integer action encoding found in raw table records.
type ActionCode uint16

const (
	CodeNoAction       ActionCode = 0
	CodeProcessorReset ActionCode = 1
	CodeAppRestart     ActionCode = 2
	CodeAlert          ActionCode = 3
	CodeAppDelete      ActionCode = 4

	// CodeMessageBase + i selects message action i.
	CodeMessageBase ActionCode = 16
)

// MessageCode returns the code selecting message action i.
func MessageCode(i int) ActionCode {
	return CodeMessageBase + ActionCode(i)
}

// Decode converts the code into an Action, rejecting unknown codes and
// message indexes outside the message action table.
func (c ActionCode) Decode() (Action, bool) {
	switch c {
	case CodeNoAction:
		return Action{Kind: NoAction}, true
	case CodeProcessorReset:
		return Action{Kind: ProcessorReset}, true
	case CodeAppRestart:
		return Action{Kind: AppRestart}, true
	case CodeAlert:
		return Action{Kind: Alert}, true
	case CodeAppDelete:
		return Action{Kind: AppDelete}, true
	}
	if c >= CodeMessageBase && c < CodeMessageBase+MaxMsgActions {
		return Action{Kind: SendMessage, Message: int(c - CodeMessageBase)}, true
	}
	return Action{}, false
}

var actionNames = map[string]ActionCode{
	"none":    CodeNoAction,
	"reset":   CodeProcessorReset,
	"restart": CodeAppRestart,
	"alert":   CodeAlert,
	"delete":  CodeAppDelete,
}

// ParseActionCode accepts either a number or one of the names none,
// reset, restart, alert, delete, or message:<index>.
func ParseActionCode(s string) (ActionCode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := actionNames[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "message:") {
		i, e := strconv.ParseUint(strings.TrimPrefix(s, "message:"), 10, 16)
		if e != nil {
			return 0, fmt.Errorf("bad message index in %q", s)
		}
		return MessageCode(int(i)), nil
	}
	n, e := strconv.ParseUint(s, 10, 16)
	if e != nil {
		return 0, fmt.Errorf("unknown action %q", s)
	}
	return ActionCode(n), nil
}

// UnmarshalYAML lets table files spell actions by name.
func (c *ActionCode) UnmarshalYAML(node *yaml.Node) error {
	v, e := ParseActionCode(node.Value)
	if e != nil {
		return e
	}
	*c = v
	return nil
}
