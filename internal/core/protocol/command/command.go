package command

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Command is one outbound text task, e.g. "party&a=inv&id=123". The game
// server answers, if at all, with a later diff frame.
type Command string

func (c Command) String() string {
	return string(c)
}

// Sender delivers commands to the game server without waiting for any
// answer.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, cmd Command) error

func (f SenderFunc) Send(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

const (
	ClanMembers  Command = "clan&a=members"
	FriendsShow  Command = "friends&a=show"
	ArtisanOpen  Command = "artisanship&action=open"
	partyAccept          = "party&a=accept&answer="
	partySummon          = "party&a=acceptsummon&answer="
	maxSettingID         = 255
)

func answer(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func PartyAccept(accept bool) Command {
	return Command(partyAccept + answer(accept))
}

func PartyAcceptSummon(accept bool) Command {
	return Command(partySummon + answer(accept))
}

func PartyInvite(id int64) Command {
	return Command("party&a=inv&id=" + strconv.FormatInt(id, 10))
}

func FriendInvite(nick string) Command {
	return Command("friends&a=finvite&nick=" + url.QueryEscape(nick))
}

func EnemyAdd(nick string) Command {
	return Command("friends&a=eadd&nick=" + url.QueryEscape(nick))
}

func TradeAsk(id int64) Command {
	return Command("trade&a=ask&id=" + strconv.FormatInt(id, 10))
}

func Emote(name string, id int64) Command {
	return Command(fmt.Sprintf("emo&a=%s&id=%d", url.QueryEscape(name), id))
}

func EnhancementStatus(itemID int64) Command {
	return Command("enhancement&action=status&item=" + strconv.FormatInt(itemID, 10))
}

// EnableSetting switches a character setting on, e.g. the friend login
// notification.
func EnableSetting(id int) (Command, error) {
	if id < 0 || id > maxSettingID {
		return "", fmt.Errorf("%w: setting id %d", ErrInvalidArgument, id)
	}
	return Command(fmt.Sprintf("settings&action=update&id=%d&v=1", id)), nil
}
