// Command badger_inspect prints the chats stored in a relay Badger directory
// and flags those whose counters drifted from their message timeline.
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"chat-relay/services"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/chat", "Path to badger DB")
	user := flag.String("user", "", "Only show chats this user belongs to")
	logLevel := flag.String("log", "WARN", "Log level of the stores")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := logs.GetLoggerFromString(*logLevel)
	chats := repositories.NewChatRepository(db, logger, 0)
	messages := repositories.NewMessageRepository(db, logger, 0)
	service := services.NewConversationService(chats, messages, repositories.NewTransactor(db, logger, 0), logger)

	list, err := loadChats(ctx, chats, *user)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Chat", "Starter", "Partners", "Messages", "Last message", "Last update", "State"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	drifted := 0
	for _, chat := range list {
		state := color.FgGreen.Render("ok")
		report, err := service.CheckConsistency(ctx, chat.ID)
		switch {
		case err != nil:
			state = color.FgRed.Render("error: " + err.Error())
		case report.Drifted():
			drifted++
			state = color.FgYellow.Render(fmt.Sprintf("drift: %d stored, %d actual", report.StoredCount, report.ActualCount))
		}
		table.Append([]string{
			short(chat.ID),
			chat.StarterUserID,
			strings.Join(chat.Partners, ","),
			strconv.Itoa(chat.NumMessages),
			short(chat.LastMessageID),
			chat.LastUpdate.Format("2006-01-02 15:04:05.000"),
			state,
		})
	}
	table.Render()
	fmt.Printf("%d chats, %d drifted\n", len(list), drifted)
}

func loadChats(ctx context.Context, chats repositories.IChatRepository, user string) ([]domain.Chat, error) {
	if user != "" {
		return chats.FindByMember(ctx, user)
	}
	ids, err := chats.ListChatIDs(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]domain.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := chats.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		list = append(list, chat)
	}
	return list, nil
}

// short keeps the random tail of a UUIDv7, the head is a timestamp shared by close ids.
func short(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
