package lldb

import (
	"runtime"

	"github.com/go-delve/sbdap/pkg/weaklink"
)

// group lists every SB API function the backend calls. Linker names are
// Itanium C++ mangled; where a parameter type differs between platforms
// (uint64_t is "unsigned long long" on darwin) both spellings are listed.
var group = weaklink.NewGroup("lldb SB API")

func required(name string, linker ...string) *weaklink.Stub {
	return group.Declare(weaklink.Symbol{Name: name, Linker: linker})
}

func optional(name string, linker ...string) *weaklink.Stub {
	return group.Declare(weaklink.Symbol{Name: name, Linker: linker, Optional: true})
}

var (
	// SBDebugger
	fnDebuggerInitialize            = required("SBDebugger::Initialize", "_ZN4lldb10SBDebugger10InitializeEv")
	fnDebuggerTerminate             = required("SBDebugger::Terminate", "_ZN4lldb10SBDebugger9TerminateEv")
	fnDebuggerCreate                = required("SBDebugger::Create", "_ZN4lldb10SBDebugger6CreateEb")
	fnDebuggerDestroy               = required("SBDebugger::Destroy", "_ZN4lldb10SBDebugger7DestroyERS0_")
	fnDebuggerDtor                  = required("SBDebugger::~SBDebugger", "_ZN4lldb10SBDebuggerD1Ev")
	fnDebuggerSetAsync              = required("SBDebugger::SetAsync", "_ZN4lldb10SBDebugger8SetAsyncEb")
	fnDebuggerCreateTarget          = required("SBDebugger::CreateTarget", "_ZN4lldb10SBDebugger12CreateTargetEPKc")
	fnDebuggerGetCommandInterpreter = required("SBDebugger::GetCommandInterpreter", "_ZN4lldb10SBDebugger21GetCommandInterpreterEv")
	fnDebuggerGetListener           = required("SBDebugger::GetListener", "_ZN4lldb10SBDebugger11GetListenerEv")

	// SBCommandInterpreter
	fnCommandInterpreterHandleCommand    = required("SBCommandInterpreter::HandleCommand", "_ZN4lldb20SBCommandInterpreter13HandleCommandEPKcRNS_21SBCommandReturnObjectEb")
	fnCommandInterpreterHandleCompletion = optional("SBCommandInterpreter::HandleCompletion", "_ZN4lldb20SBCommandInterpreter16HandleCompletionEPKcjiiRNS_12SBStringListE")
	fnCommandInterpreterDtor             = required("SBCommandInterpreter::~SBCommandInterpreter", "_ZN4lldb20SBCommandInterpreterD1Ev")

	// SBCommandReturnObject
	fnCommandReturnObjectCtor      = required("SBCommandReturnObject::SBCommandReturnObject", "_ZN4lldb21SBCommandReturnObjectC1Ev")
	fnCommandReturnObjectDtor      = required("SBCommandReturnObject::~SBCommandReturnObject", "_ZN4lldb21SBCommandReturnObjectD1Ev")
	fnCommandReturnObjectGetOutput = required("SBCommandReturnObject::GetOutput", "_ZN4lldb21SBCommandReturnObject9GetOutputEv")
	fnCommandReturnObjectGetError  = required("SBCommandReturnObject::GetError", "_ZN4lldb21SBCommandReturnObject8GetErrorEv")
	fnCommandReturnObjectSucceeded = required("SBCommandReturnObject::Succeeded", "_ZN4lldb21SBCommandReturnObject9SucceededEv")

	// SBStringList
	fnStringListCtor             = optional("SBStringList::SBStringList", "_ZN4lldb12SBStringListC1Ev")
	fnStringListDtor             = optional("SBStringList::~SBStringList", "_ZN4lldb12SBStringListD1Ev")
	fnStringListGetSize          = optional("SBStringList::GetSize", "_ZNK4lldb12SBStringList7GetSizeEv")
	fnStringListGetStringAtIndex = optional("SBStringList::GetStringAtIndex", "_ZN4lldb12SBStringList16GetStringAtIndexEm", "_ZN4lldb12SBStringList16GetStringAtIndexEj")

	// SBError
	fnErrorCtor       = required("SBError::SBError", "_ZN4lldb7SBErrorC1Ev")
	fnErrorDtor       = required("SBError::~SBError", "_ZN4lldb7SBErrorD1Ev")
	fnErrorFail       = required("SBError::Fail", "_ZNK4lldb7SBError4FailEv")
	fnErrorGetCString = required("SBError::GetCString", "_ZNK4lldb7SBError10GetCStringEv")

	// SBTarget
	fnTargetDtor                       = required("SBTarget::~SBTarget", "_ZN4lldb8SBTargetD1Ev")
	fnTargetIsValid                    = required("SBTarget::IsValid", "_ZNK4lldb8SBTarget7IsValidEv")
	fnTargetLaunch                     = required("SBTarget::Launch", "_ZN4lldb8SBTarget6LaunchERNS_12SBLaunchInfoERNS_7SBErrorE")
	fnTargetAttachToProcessWithID      = required("SBTarget::AttachToProcessWithID", "_ZN4lldb8SBTarget21AttachToProcessWithIDERNS_10SBListenerEmRNS_7SBErrorE", "_ZN4lldb8SBTarget21AttachToProcessWithIDERNS_10SBListenerEyRNS_7SBErrorE")
	fnTargetAttachToProcessWithName    = required("SBTarget::AttachToProcessWithName", "_ZN4lldb8SBTarget23AttachToProcessWithNameERNS_10SBListenerEPKcbRNS_7SBErrorE")
	fnTargetGetProcess                 = required("SBTarget::GetProcess", "_ZN4lldb8SBTarget10GetProcessEv")
	fnTargetBreakpointCreateByLocation = required("SBTarget::BreakpointCreateByLocation", "_ZN4lldb8SBTarget26BreakpointCreateByLocationEPKcj")
	fnTargetBreakpointCreateByName     = required("SBTarget::BreakpointCreateByName", "_ZN4lldb8SBTarget22BreakpointCreateByNameEPKcS2_")
	fnTargetBreakpointDelete           = required("SBTarget::BreakpointDelete", "_ZN4lldb8SBTarget16BreakpointDeleteEi")
	fnTargetGetNumModules              = optional("SBTarget::GetNumModules", "_ZNK4lldb8SBTarget13GetNumModulesEv")
	fnTargetGetModuleAtIndex           = optional("SBTarget::GetModuleAtIndex", "_ZN4lldb8SBTarget16GetModuleAtIndexEj")
	fnTargetGetTriple                  = optional("SBTarget::GetTriple", "_ZN4lldb8SBTarget9GetTripleEv")
	fnTargetEventIsTargetEvent         = optional("SBTarget::EventIsTargetEvent", "_ZN4lldb8SBTarget18EventIsTargetEventERKNS_7SBEventE")
	fnTargetGetNumModulesFromEvent     = optional("SBTarget::GetNumModulesFromEvent", "_ZN4lldb8SBTarget22GetNumModulesFromEventERKNS_7SBEventE")
	fnTargetGetModuleAtIndexFromEvent  = optional("SBTarget::GetModuleAtIndexFromEvent", "_ZN4lldb8SBTarget25GetModuleAtIndexFromEventEjRKNS_7SBEventE")

	// SBLaunchInfo
	fnLaunchInfoCtor                  = required("SBLaunchInfo::SBLaunchInfo", "_ZN4lldb12SBLaunchInfoC1EPPKc")
	fnLaunchInfoDtor                  = required("SBLaunchInfo::~SBLaunchInfo", "_ZN4lldb12SBLaunchInfoD1Ev")
	fnLaunchInfoSetArguments          = required("SBLaunchInfo::SetArguments", "_ZN4lldb12SBLaunchInfo12SetArgumentsEPPKcb")
	fnLaunchInfoSetEnvironmentEntries = required("SBLaunchInfo::SetEnvironmentEntries", "_ZN4lldb12SBLaunchInfo21SetEnvironmentEntriesEPPKcb")
	fnLaunchInfoSetWorkingDirectory   = required("SBLaunchInfo::SetWorkingDirectory", "_ZN4lldb12SBLaunchInfo19SetWorkingDirectoryEPKc")
	fnLaunchInfoSetLaunchFlags        = required("SBLaunchInfo::SetLaunchFlags", "_ZN4lldb12SBLaunchInfo14SetLaunchFlagsEj")
	fnLaunchInfoAddOpenFileAction     = required("SBLaunchInfo::AddOpenFileAction", "_ZN4lldb12SBLaunchInfo17AddOpenFileActionEiPKcbb")

	// SBProcess
	fnProcessDtor                  = required("SBProcess::~SBProcess", "_ZN4lldb9SBProcessD1Ev")
	fnProcessIsValid               = required("SBProcess::IsValid", "_ZNK4lldb9SBProcess7IsValidEv")
	fnProcessGetProcessID          = required("SBProcess::GetProcessID", "_ZN4lldb9SBProcess12GetProcessIDEv")
	fnProcessGetState              = required("SBProcess::GetState", "_ZN4lldb9SBProcess8GetStateEv")
	fnProcessGetExitStatus         = required("SBProcess::GetExitStatus", "_ZN4lldb9SBProcess13GetExitStatusEv")
	fnProcessContinue              = required("SBProcess::Continue", "_ZN4lldb9SBProcess8ContinueEv")
	fnProcessStop                  = required("SBProcess::Stop", "_ZN4lldb9SBProcess4StopEv")
	fnProcessKill                  = required("SBProcess::Kill", "_ZN4lldb9SBProcess4KillEv")
	fnProcessDetach                = required("SBProcess::Detach", "_ZN4lldb9SBProcess6DetachEv")
	fnProcessGetNumThreads         = required("SBProcess::GetNumThreads", "_ZN4lldb9SBProcess13GetNumThreadsEv")
	fnProcessGetThreadAtIndex      = required("SBProcess::GetThreadAtIndex", "_ZN4lldb9SBProcess16GetThreadAtIndexEm")
	fnProcessGetThreadByID         = required("SBProcess::GetThreadByID", "_ZN4lldb9SBProcess13GetThreadByIDEm", "_ZN4lldb9SBProcess13GetThreadByIDEy")
	fnProcessGetSelectedThread     = required("SBProcess::GetSelectedThread", "_ZNK4lldb9SBProcess17GetSelectedThreadEv")
	fnProcessReadMemory            = required("SBProcess::ReadMemory", "_ZN4lldb9SBProcess10ReadMemoryEmPvmRNS_7SBErrorE", "_ZN4lldb9SBProcess10ReadMemoryEyPvmRNS_7SBErrorE")
	fnProcessLoadImage             = required("SBProcess::LoadImage", "_ZN4lldb9SBProcess9LoadImageERKNS_10SBFileSpecERNS_7SBErrorE")
	fnProcessGetSTDOUT             = required("SBProcess::GetSTDOUT", "_ZNK4lldb9SBProcess9GetSTDOUTEPcm")
	fnProcessGetSTDERR             = required("SBProcess::GetSTDERR", "_ZNK4lldb9SBProcess9GetSTDERREPcm")
	fnProcessGetStateFromEvent     = required("SBProcess::GetStateFromEvent", "_ZN4lldb9SBProcess17GetStateFromEventERKNS_7SBEventE")
	fnProcessGetRestartedFromEvent = required("SBProcess::GetRestartedFromEvent", "_ZN4lldb9SBProcess21GetRestartedFromEventERKNS_7SBEventE")
	fnProcessEventIsProcessEvent   = required("SBProcess::EventIsProcessEvent", "_ZN4lldb9SBProcess19EventIsProcessEventERKNS_7SBEventE")
	fnProcessGetProcessFromEvent   = required("SBProcess::GetProcessFromEvent", "_ZN4lldb9SBProcess19GetProcessFromEventERKNS_7SBEventE")

	// SBThread
	fnThreadDtor                     = required("SBThread::~SBThread", "_ZN4lldb8SBThreadD1Ev")
	fnThreadIsValid                  = required("SBThread::IsValid", "_ZNK4lldb8SBThread7IsValidEv")
	fnThreadGetThreadID              = required("SBThread::GetThreadID", "_ZNK4lldb8SBThread11GetThreadIDEv")
	fnThreadGetName                  = required("SBThread::GetName", "_ZNK4lldb8SBThread7GetNameEv")
	fnThreadGetStopReason            = required("SBThread::GetStopReason", "_ZN4lldb8SBThread13GetStopReasonEv")
	fnThreadGetStopReasonDataCount   = required("SBThread::GetStopReasonDataCount", "_ZN4lldb8SBThread22GetStopReasonDataCountEv")
	fnThreadGetStopReasonDataAtIndex = required("SBThread::GetStopReasonDataAtIndex", "_ZN4lldb8SBThread24GetStopReasonDataAtIndexEj")
	fnThreadGetNumFrames             = required("SBThread::GetNumFrames", "_ZN4lldb8SBThread12GetNumFramesEv")
	fnThreadGetFrameAtIndex          = required("SBThread::GetFrameAtIndex", "_ZN4lldb8SBThread15GetFrameAtIndexEj")
	fnThreadStepOver                 = required("SBThread::StepOver", "_ZN4lldb8SBThread8StepOverENS_7RunModeE")
	fnThreadStepInto                 = required("SBThread::StepInto", "_ZN4lldb8SBThread8StepIntoENS_7RunModeE")
	fnThreadStepOut                  = required("SBThread::StepOut", "_ZN4lldb8SBThread7StepOutEv")

	// SBFrame
	fnFrameDtor               = required("SBFrame::~SBFrame", "_ZN4lldb7SBFrameD1Ev")
	fnFrameIsValid            = required("SBFrame::IsValid", "_ZNK4lldb7SBFrame7IsValidEv")
	fnFrameGetFunctionName    = required("SBFrame::GetFunctionName", "_ZN4lldb7SBFrame15GetFunctionNameEv", "_ZNK4lldb7SBFrame15GetFunctionNameEv")
	fnFrameGetLineEntry       = required("SBFrame::GetLineEntry", "_ZNK4lldb7SBFrame12GetLineEntryEv")
	fnFrameGetPC              = required("SBFrame::GetPC", "_ZNK4lldb7SBFrame5GetPCEv")
	fnFrameGetVariables       = required("SBFrame::GetVariables", "_ZN4lldb7SBFrame12GetVariablesEbbbb")
	fnFrameGetRegisters       = optional("SBFrame::GetRegisters", "_ZN4lldb7SBFrame12GetRegistersEv")
	fnFrameEvaluateExpression = required("SBFrame::EvaluateExpression", "_ZN4lldb7SBFrame18EvaluateExpressionEPKc")

	// SBLineEntry
	fnLineEntryDtor        = required("SBLineEntry::~SBLineEntry", "_ZN4lldb11SBLineEntryD1Ev")
	fnLineEntryIsValid     = required("SBLineEntry::IsValid", "_ZNK4lldb11SBLineEntry7IsValidEv")
	fnLineEntryGetFileSpec = required("SBLineEntry::GetFileSpec", "_ZNK4lldb11SBLineEntry11GetFileSpecEv")
	fnLineEntryGetLine     = required("SBLineEntry::GetLine", "_ZNK4lldb11SBLineEntry7GetLineEv")
	fnLineEntryGetColumn   = required("SBLineEntry::GetColumn", "_ZNK4lldb11SBLineEntry9GetColumnEv")

	// SBFileSpec
	fnFileSpecCtor    = required("SBFileSpec::SBFileSpec", "_ZN4lldb10SBFileSpecC1EPKcb")
	fnFileSpecDtor    = required("SBFileSpec::~SBFileSpec", "_ZN4lldb10SBFileSpecD1Ev")
	fnFileSpecGetPath = required("SBFileSpec::GetPath", "_ZNK4lldb10SBFileSpec7GetPathEPcm")

	// SBValueList
	fnValueListDtor            = required("SBValueList::~SBValueList", "_ZN4lldb11SBValueListD1Ev")
	fnValueListGetSize         = required("SBValueList::GetSize", "_ZNK4lldb11SBValueList7GetSizeEv")
	fnValueListGetValueAtIndex = required("SBValueList::GetValueAtIndex", "_ZNK4lldb11SBValueList15GetValueAtIndexEj")

	// SBValue
	fnValueDtor                = required("SBValue::~SBValue", "_ZN4lldb7SBValueD1Ev")
	fnValueIsValid             = required("SBValue::IsValid", "_ZN4lldb7SBValue7IsValidEv")
	fnValueGetName             = required("SBValue::GetName", "_ZN4lldb7SBValue7GetNameEv")
	fnValueGetValue            = required("SBValue::GetValue", "_ZN4lldb7SBValue8GetValueEv")
	fnValueGetSummary          = required("SBValue::GetSummary", "_ZN4lldb7SBValue10GetSummaryEv")
	fnValueGetTypeName         = required("SBValue::GetTypeName", "_ZN4lldb7SBValue11GetTypeNameEv")
	fnValueGetNumChildren      = required("SBValue::GetNumChildren", "_ZN4lldb7SBValue14GetNumChildrenEv")
	fnValueGetChildAtIndex     = required("SBValue::GetChildAtIndex", "_ZN4lldb7SBValue15GetChildAtIndexEj")
	fnValueGetError            = required("SBValue::GetError", "_ZN4lldb7SBValue8GetErrorEv")
	fnValueSetValueFromCString = required("SBValue::SetValueFromCString", "_ZN4lldb7SBValue19SetValueFromCStringEPKcRNS_7SBErrorE")

	// SBBreakpoint
	fnBreakpointDtor               = required("SBBreakpoint::~SBBreakpoint", "_ZN4lldb12SBBreakpointD1Ev")
	fnBreakpointIsValid            = required("SBBreakpoint::IsValid", "_ZNK4lldb12SBBreakpoint7IsValidEv")
	fnBreakpointGetID              = required("SBBreakpoint::GetID", "_ZNK4lldb12SBBreakpoint5GetIDEv")
	fnBreakpointSetCondition       = required("SBBreakpoint::SetCondition", "_ZN4lldb12SBBreakpoint12SetConditionEPKc")
	fnBreakpointGetNumLocations    = required("SBBreakpoint::GetNumLocations", "_ZNK4lldb12SBBreakpoint15GetNumLocationsEv")
	fnBreakpointGetLocationAtIndex = optional("SBBreakpoint::GetLocationAtIndex", "_ZN4lldb12SBBreakpoint18GetLocationAtIndexEj")

	// SBBreakpointLocation
	fnBreakpointLocationDtor       = optional("SBBreakpointLocation::~SBBreakpointLocation", "_ZN4lldb20SBBreakpointLocationD1Ev")
	fnBreakpointLocationGetAddress = optional("SBBreakpointLocation::GetAddress", "_ZN4lldb20SBBreakpointLocation10GetAddressEv")

	// SBAddress
	fnAddressDtor         = optional("SBAddress::~SBAddress", "_ZN4lldb9SBAddressD1Ev")
	fnAddressGetLineEntry = optional("SBAddress::GetLineEntry", "_ZN4lldb9SBAddress12GetLineEntryEv")

	// SBModule
	fnModuleDtor          = optional("SBModule::~SBModule", "_ZN4lldb8SBModuleD1Ev")
	fnModuleGetFileSpec   = optional("SBModule::GetFileSpec", "_ZNK4lldb8SBModule11GetFileSpecEv")
	fnModuleGetUUIDString = optional("SBModule::GetUUIDString", "_ZNK4lldb8SBModule13GetUUIDStringEv")

	// SBListener
	fnListenerDtor                        = required("SBListener::~SBListener", "_ZN4lldb10SBListenerD1Ev")
	fnListenerWaitForEvent                = required("SBListener::WaitForEvent", "_ZN4lldb10SBListener12WaitForEventEjRNS_7SBEventE")
	fnListenerStartListeningForEventClass = required("SBListener::StartListeningForEventClass", "_ZN4lldb10SBListener27StartListeningForEventClassERNS_10SBDebuggerEPKcj")

	// SBEvent
	fnEventCtor    = required("SBEvent::SBEvent", "_ZN4lldb7SBEventC1Ev")
	fnEventDtor    = required("SBEvent::~SBEvent", "_ZN4lldb7SBEventD1Ev")
	fnEventGetType = required("SBEvent::GetType", "_ZNK4lldb7SBEvent7GetTypeEv")
)

// Resolve binds the SB API symbols from lib.
func Resolve(lib weaklink.Library) (*weaklink.Token, error) {
	return group.Resolve(lib)
}

// Symbols returns the declared SB API symbols.
func Symbols() []weaklink.Symbol {
	return group.Symbols()
}

// DefaultLibraryName is the file name of the engine library on this
// platform, looked up through the dynamic loader search path when no
// explicit path is configured.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "liblldb.dylib"
	case "windows":
		return "liblldb.dll"
	default:
		return "liblldb.so"
	}
}
