package radius

import (
	"fmt"

	"layeh.com/radius"
)

// MikroTik vendor ID
const MikrotikVendorID = 14988

// MikroTik vendor-specific attribute types
const (
	MikrotikRateLimit           = 8
	MikrotikTotalLimit          = 17
	MikrotikTotalLimitGigawords = 18
)

// Microsoft vendor ID and the MS-CHAPv2 attribute types carried inside it
const (
	MicrosoftVendorID   = 311
	MSCHAPChallengeType = 11
	MSCHAP2ResponseType = 25
	MSCHAP2SuccessType  = 26
)

// Standard attribute types referenced by raw-byte walks
const (
	attrTypeVendorSpecific       = 26
	attrTypeMessageAuthenticator = 80
)

// packetCodeNames is read-only; names follow the RFC registries
var packetCodeNames = map[radius.Code]string{
	radius.CodeAccessRequest:      "Access-Request",
	radius.CodeAccessAccept:       "Access-Accept",
	radius.CodeAccessReject:       "Access-Reject",
	radius.CodeAccountingRequest:  "Accounting-Request",
	radius.CodeAccountingResponse: "Accounting-Response",
	radius.CodeAccessChallenge:    "Access-Challenge",
	radius.CodeDisconnectRequest:  "Disconnect-Request",
	radius.CodeDisconnectACK:      "Disconnect-ACK",
	radius.CodeDisconnectNAK:      "Disconnect-NAK",
	radius.CodeCoARequest:         "CoA-Request",
	radius.CodeCoAACK:             "CoA-ACK",
	radius.CodeCoANAK:             "CoA-NAK",
}

// CodeName returns the registry name for a packet code
func CodeName(code radius.Code) string {
	if name, ok := packetCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Code-%d", int(code))
}

// terminateCauseNames maps Acct-Terminate-Cause values (RFC 2866 §5.10) to
// the canonical strings stored on session rows
var terminateCauseNames = map[uint32]string{
	1:  "USER_REQUEST",
	2:  "LOST_CARRIER",
	3:  "LOST_SERVICE",
	4:  "IDLE_TIMEOUT",
	5:  "SESSION_TIMEOUT",
	6:  "ADMIN_RESET",
	7:  "ADMIN_REBOOT",
	8:  "PORT_ERROR",
	9:  "NAS_ERROR",
	10: "NAS_REQUEST",
	11: "NAS_REBOOT",
	12: "PORT_UNNEEDED",
	13: "PORT_PREEMPTED",
	14: "PORT_SUSPENDED",
	15: "SERVICE_UNAVAILABLE",
	16: "CALLBACK",
	17: "USER_ERROR",
	18: "HOST_REQUEST",
}

// TerminateCauseNasReboot is the cause written by the Accounting-On/Off sweep
const TerminateCauseNasReboot = "NAS_REBOOT"

// TerminateCauseName returns the canonical string for a terminate-cause value
func TerminateCauseName(cause uint32) string {
	if cause == 0 {
		return ""
	}
	if name, ok := terminateCauseNames[cause]; ok {
		return name
	}
	return fmt.Sprintf("CAUSE_%d", cause)
}

// errorCauseNames is the RFC 5176 §3.5 Error-Cause registry
var errorCauseNames = map[uint32]string{
	201: "Residual Session Context Removed",
	202: "Invalid EAP Packet (Ignored)",
	401: "Unsupported Attribute",
	402: "Missing Attribute",
	403: "NAS Identification Mismatch",
	404: "Invalid Request",
	405: "Unsupported Service",
	406: "Unsupported Extension",
	407: "Invalid Attribute Value",
	501: "Administratively Prohibited",
	502: "Request Not Routable (Proxy)",
	503: "Session Context Not Found",
	504: "Session Context Not Removable",
	505: "Other Proxy Processing Error",
	506: "Resource Unavailable",
	507: "Request Initiated",
	508: "Multiple Session Selection Unsupported",
}

// ErrorCauseName returns the registry string for an RFC 5176 Error-Cause
func ErrorCauseName(cause uint32) string {
	if name, ok := errorCauseNames[cause]; ok {
		return name
	}
	return fmt.Sprintf("Error-Cause %d", cause)
}

// acctStatusTypeNames covers the values the accounting handler dispatches on
var acctStatusTypeNames = map[uint32]string{
	1: "Start",
	2: "Stop",
	3: "Interim-Update",
	7: "Accounting-On",
	8: "Accounting-Off",
}

// AcctStatusTypeName returns the name for an Acct-Status-Type value
func AcctStatusTypeName(v uint32) string {
	if name, ok := acctStatusTypeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Status-%d", v)
}
