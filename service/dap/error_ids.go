package dap

// Unique identifiers for messages returned for errors from requests.
// These values are not mandated by DAP (other than the uniqueness
// requirement), so each implementation is free to choose their own.
const (
	UnsupportedCommand int = 9999
	InternalError      int = 8888
	NotYetImplemented  int = 7777

	// Where applicable and for consistency only,
	// values below are inspired the original vscode-go debug adaptor.
	FailedToLaunch             = 3000
	FailedToAttach             = 3001
	UnableToDisplayThreads     = 2003
	UnableToProduceStackTrace  = 2004
	UnableToListLocals         = 2005
	UnableToListArgs           = 2006
	UnableToListGlobals        = 2007
	UnableToLookupVariable     = 2008
	UnableToEvaluateExpression = 2009

	InvalidHandle           = 2010
	RequestCancelled        = 2011
	InvalidState            = 2012
	FailedToSetBreakpoints  = 2013
	UnableToReadMemory      = 2014
	UnableToDisassemble     = 2015
	UnableToCompleteRequest = 2016
	UnableToSetVariable     = 2017
	UnableToRunCommand      = 2018
	ProtocolViolation       = 2019
)
