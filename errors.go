/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// GameError is an expected rejection: a stable machine code for client
// controllers to branch on, plus a human-readable message.
type GameError struct {
	Code    string
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

func gameErr(code, message string) *GameError {
	return &GameError{Code: code, Message: message}
}

const (
	codeRoomNotFound       = "ROOM_NOT_FOUND"
	codeJoinFailed         = "JOIN_FAILED"
	codeNotHost            = "NOT_HOST"
	codePlayerNotFound     = "PLAYER_NOT_FOUND"
	codeAlreadyVoted       = "ALREADY_VOTED"
	codeInvalidVote        = "INVALID_VOTE"
	codeNotPlaying         = "NOT_PLAYING"
	codeAlreadyStarted     = "ALREADY_STARTED"
	codeInsufficientImages = "INSUFFICIENT_IMAGES"
)

// errCode extracts the machine code from an error, falling back to a
// generic internal code for anything unexpected.
func errCode(err error) string {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, ErrInsufficientImages) {
		return codeInsufficientImages
	}
	return "INTERNAL_ERROR"
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
