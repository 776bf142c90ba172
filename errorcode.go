/*
Copyright 2024 Paycore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package paycore

// ResultCode is an OSMP provider-side result code. The fatal/non-fatal
// split is part of the provider contract: fatal means a retry with
// identical parameters is guaranteed to fail again, non-fatal means the
// provider will keep retrying until the operation finishes.
type ResultCode int

const (
	ResultOk                  ResultCode = 0
	ResultTemporaryError      ResultCode = 1
	ResultInvalidAccount      ResultCode = 4
	ResultAccountNotFound     ResultCode = 5
	ResultPaymentForbidden    ResultCode = 7
	ResultAccountNotActive    ResultCode = 79
	ResultPaymentNotCompleted ResultCode = 90
	ResultAmountTooSmall      ResultCode = 241
	ResultAmountTooLarge      ResultCode = 242
	ResultCannotCheckAccount  ResultCode = 243
	ResultOtherProviderError  ResultCode = 300
)

// resultCodeTable is the explicit classification mandated by the protocol.
// Unknown codes are treated as fatal.
var resultCodeTable = map[ResultCode]struct {
	fatal       bool
	description string
}{
	ResultOk:                  {false, "OK"},
	ResultTemporaryError:      {false, "Temporary error, retry later"},
	ResultInvalidAccount:      {true, "Invalid subscriber account format"},
	ResultAccountNotFound:     {true, "Subscriber account not found"},
	ResultPaymentForbidden:    {true, "Payment acceptance forbidden by provider"},
	ResultAccountNotActive:    {true, "Subscriber account not active"},
	ResultPaymentNotCompleted: {false, "Payment processing not finished"},
	ResultAmountTooSmall:      {true, "Amount too small"},
	ResultAmountTooLarge:      {true, "Amount too large"},
	ResultCannotCheckAccount:  {true, "Cannot check account state"},
	ResultOtherProviderError:  {true, "Other provider error"},
}

// IsFatal reports whether retrying the operation with identical parameters
// is certain to fail again.
func (c ResultCode) IsFatal() bool {
	if entry, ok := resultCodeTable[c]; ok {
		return entry.fatal
	}
	return true
}

// Description returns the human-readable meaning of the code.
func (c ResultCode) Description() string {
	if entry, ok := resultCodeTable[c]; ok {
		return entry.description
	}
	return "Unknown error"
}
