// Package domain contains core concepts of the chat system.
// This file defines the line protocol spoken with clients.
package domain

import "fmt"

// MessagePrefix marks lines the client must display. Prompts are sent without it.
const MessagePrefix = "MSG:"

const (
	PromptUsername  = "Welcome! Enter username (3-20 chars, no spaces):"
	PromptAdmin     = "Admin? Y/N: "
	PromptPublic    = "Public? Y/N: "
	PromptRoomCode  = "Enter room code: "
	Menu            = "\nMAIN MENU\n1) Create Chat\n2) Join Chat\n3) Public Chats\nChoose [1-3]:"
	MenuCreate      = "1"
	MenuJoin        = "2"
	MenuListPublic  = "3"
	NoticeInvalid   = "Invalid username"
	NoticeNameInUse = "Username already in use"
	NoticeBadChoice = "Invalid choice"
	NoticeNotFound  = "Room not found"
	NoticeBanned    = "You are banned from this room"
	NoticeNoRooms   = "No public rooms"
	NoticeYouBanned = "You were banned by admin!"
	NoticeYouKicked = "You were kicked by admin!"
	NoticeRemoved   = "This room was removed by admin!"
	NoticeRemovedOK = "Room removed successfully"
	NoticeNoTarget  = "User not found in room"
	NoticeSlowDown  = "Too many messages, slow down"
	NoticeShutdown  = "Server is shutting down"
	PublicRoomsHead = "Public Rooms:"
)

// Frame turns a display line into its wire form.
func Frame(line string) string {
	return MessagePrefix + line + "\n"
}

func ChatLine(name, text string) string {
	return fmt.Sprintf("%s > %s", name, text)
}

func JoinedLine(name string) string {
	return name + " joined"
}

func BannedLine(name string) string {
	return name + " was banned by admin"
}

func KickedLine(name string) string {
	return name + " was kicked by admin"
}

func RoomCodeLine(code RoomCode) string {
	return fmt.Sprintf("Room Code: %s (keep it to join later)", code)
}

func SummaryLine(s RoomSummary) string {
	return fmt.Sprintf("%s - %s (%d)", s.Code, s.Name, s.Members)
}
