package dispatch

import (
	"errors"
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// SenseError is the error type handlers return to fail a command with
// a specific SCSI sense; Dispatch encodes it into the response. Any
// other error is reported as ILLEGAL REQUEST / INVALID FIELD IN CDB.
type SenseError struct {
	Pair    senseerr.Pair
	ILI     bool
	CmdInfo uint32
}

func (e *SenseError) Error() string {
	return fmt.Sprintf("sense key 0x%02X asc/ascq 0x%04X", e.Pair.Key, e.Pair.ASCASCQ)
}

// Sense builds a plain SenseError with no ILI bit or command info.
func Sense(p senseerr.Pair) error {
	return &SenseError{Pair: p}
}

// SenseWithInfo builds a SenseError carrying the ILI bit and a command-
// information field, used by READ CD/READ(10/12) to report the
// offending LBA of an unrecoverable read error.
func SenseWithInfo(p senseerr.Pair, ili bool, cmdInfo uint32) error {
	return &SenseError{Pair: p, ILI: ili, CmdInfo: cmdInfo}
}

// HandlerFunc implements one opcode.
type HandlerFunc func(ctx *Context, req *Request) error

type opDesc struct {
	handler         HandlerFunc
	interruptsAudio bool
}

// opcodeTable maps opcode to handler; interruptsAudio marks the
// commands spec §4.6 says must stop PLAYING/PAUSED audio before
// running (PLAY/PAUSE/RESUME themselves do not interrupt).
var opcodeTable = map[byte]opDesc{
	mmc.OpTestUnitReady:        {handleTestUnitReady, true},
	mmc.OpRequestSense:         {handleRequestSense, false},
	mmc.OpInquiry:              {handleInquiry, false},
	mmc.OpModeSelect6:          {handleModeSelect6, true},
	mmc.OpModeSelect10:         {handleModeSelect10, true},
	mmc.OpModeSense6:           {handleModeSense6, false},
	mmc.OpModeSense10:          {handleModeSense10, false},
	mmc.OpStartStopUnit:        {handleStartStopUnit, true},
	mmc.OpPreventAllowRemoval:  {handlePreventAllowRemoval, false},
	mmc.OpReadCapacity:         {handleReadCapacity, true},
	mmc.OpRead10:               {handleRead10, true},
	mmc.OpRead12:               {handleRead12, true},
	mmc.OpReadCD:               {handleReadCD, true},
	mmc.OpReadCDMSF:            {handleReadCDMSF, true},
	mmc.OpWrite10:              {handleWrite10, true},
	mmc.OpWrite12:              {handleWrite12, true},
	mmc.OpSeek10:               {handleSeek10, true},
	mmc.OpSynchronizeCache:     {handleSynchronizeCache, false},
	mmc.OpReadTOCPMAATIP:       {handleReadTOC, false},
	mmc.OpGetConfiguration:     {handleGetConfiguration, false},
	mmc.OpGetEventStatusNotify: {handleGetEventStatusNotification, false},
	mmc.OpReadDiscInformation:  {handleReadDiscInformation, false},
	mmc.OpReadTrackInformation: {handleReadTrackInformation, false},
	mmc.OpReserveTrack:         {handleReserveTrack, true},
	mmc.OpSendCueSheet:         {handleSendCueSheet, true},
	mmc.OpCloseTrackSession:    {handleCloseTrackSession, true},
	mmc.OpReadBufferCapacity:   {handleReadBufferCapacity, false},
	mmc.OpReportKey:            {handleReportKey, false},
	mmc.OpPlayAudio10:          {handlePlayAudio, false},
	mmc.OpPlayAudio12:          {handlePlayAudio, false},
	mmc.OpPlayAudioMSF:         {handlePlayAudio, false},
	mmc.OpPauseResume:          {handlePauseResume, false},
	mmc.OpReadDiscStructure:    {handleReadDiscStructure, false},
	mmc.OpReadSubChannel:       {handleReadSubchannel, false},
	mmc.OpGetPerformance:       {handleGetPerformance, false},
	mmc.OpSetCDSpeed:           {handleSetCDSpeed, false},
	mmc.OpSetStreaming:         {handleSetStreaming, false},
}

// Dispatch runs one command under the device lock (spec §4.6 "dispatch
// wrapper"): stop interrupted audio, invoke the handler, translate any
// returned error into a CHECK CONDITION sense, and report status/out/
// sense to the caller (normally C9's kernel I/O thread).
func Dispatch(ctx *Context, cdb, in []byte) (status uint32, out []byte, sense []byte) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if len(cdb) == 0 {
		return senseerr.StatusCheckCondition, nil, senseerr.Encode(senseerr.InvalidCommandOpcode, false, 0)
	}

	desc, ok := opcodeTable[cdb[0]]
	if !ok {
		return senseerr.StatusCheckCondition, nil, senseerr.Encode(senseerr.InvalidCommandOpcode, false, 0)
	}

	if desc.interruptsAudio && ctx.Audio != nil && ctx.Audio.IsActive() {
		ctx.Audio.Stop()
	}

	req := NewRequest(cdb, in)
	if err := desc.handler(ctx, req); err != nil {
		var se *SenseError
		if errors.As(err, &se) {
			return senseerr.StatusCheckCondition, req.Out(), senseerr.Encode(se.Pair, se.ILI, se.CmdInfo)
		}
		return senseerr.StatusCheckCondition, req.Out(), senseerr.Encode(senseerr.InvalidFieldInCDB, false, 0)
	}
	return senseerr.StatusGood, req.Out(), nil
}

// requireMedium is the common "medium loaded" guard most data-path
// commands apply first (spec §4.6 TEST UNIT READY / READ(10/12) etc.).
func requireMedium(ctx *Context) error {
	if !ctx.MediumLoaded {
		return Sense(senseerr.MediumNotPresent)
	}
	return nil
}

// requireRecording is the common guard for WRITE/SEND CUE SHEET/
// SYNCHRONIZE CACHE/CLOSE TRACK/SESSION/RESERVE TRACK (spec §4.6).
func requireRecording(ctx *Context) error {
	if ctx.Recording == nil {
		return Sense(senseerr.CommandSequenceError)
	}
	return nil
}
