package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/shiragiku/toka/internal/toka/schedule"
)

// Component and modal custom IDs.  The edit modal carries the target row
// index as a suffix so the submit handler knows which row to overwrite.
const (
	idPrevious      = "schedule_previous"
	idNext          = "schedule_next"
	idAddTrigger    = "schedule_add_modal_trigger"
	idEditTrigger   = "schedule_edit_modal_trigger"
	idDeleteTrigger = "schedule_delete_modal_trigger"

	idAddModal        = "schedule_add_text_modal"
	idDeleteModal     = "schedule_delete_text_modal"
	idEditModalPrefix = "schedule_edit_modal_submit_"

	idAddInput    = "schedule_text_input"
	idDeleteInput = "schedule_delete_description_input"
	idEditType    = "edit_type_input"
	idEditTask    = "edit_task_input"
	idEditDue     = "edit_due_input"
)

const emptyListMessage = "✅ 登録されている予定はありません。「追加」ボタンから新しい予定を登録できます。"

// clampIndex keeps a pager index inside [0, total).  A shrunk list (rows
// deleted between interactions) snaps the cursor back to the last row.
func clampIndex(index, total int) int {
	if total <= 0 {
		return 0
	}
	if index < 0 {
		return 0
	}
	if index >= total {
		return total - 1
	}
	return index
}

// scheduleEmbed renders one schedule row as the pager card.
func scheduleEmbed(rec schedule.Record, index, total int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("📝 %s (%d/%d)", orNA(rec.Type), index+1, total),
		Color: 0x0099FF,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "内容", Value: orNA(rec.Task)},
			{Name: "期限", Value: orNA(rec.Due)},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("予定 %d / %d", index+1, total),
		},
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// pagerComponents builds the button row under the pager.  Edit and delete
// only appear when there is something to edit or delete.
func pagerComponents(index, total int, disabled bool) []discordgo.MessageComponent {
	exist := total > 0
	buttons := []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: idPrevious,
			Label:    "前の予定",
			Style:    discordgo.PrimaryButton,
			Disabled: disabled || !exist || index == 0,
		},
		discordgo.Button{
			CustomID: idNext,
			Label:    "次の予定",
			Style:    discordgo.PrimaryButton,
			Disabled: disabled || !exist || index >= total-1,
		},
		discordgo.Button{
			CustomID: idAddTrigger,
			Label:    "追加",
			Style:    discordgo.SuccessButton,
			Disabled: disabled,
		},
	}
	if exist {
		buttons = append(buttons,
			discordgo.Button{
				CustomID: idEditTrigger,
				Label:    "編集",
				Style:    discordgo.SecondaryButton,
				Disabled: disabled,
			},
			discordgo.Button{
				CustomID: idDeleteTrigger,
				Label:    "削除",
				Style:    discordgo.DangerButton,
				Disabled: disabled,
			},
		)
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

// addModal asks for free text that the extractor turns into rows.
func addModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idAddModal,
			Title:    "新しい予定を文章で追加",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    idAddInput,
						Label:       "予定の詳細を文章で入力",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "例:\n・明日の数学の宿題 P10-15\n・国語の音読 来週月曜まで",
						Required:    true,
					},
				}},
			},
		},
	}
}

// editModal pre-fills the current row so only the changed fields differ.
func editModal(index int, rec schedule.Record) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: editModalID(index),
			Title:    "予定を編集",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: idEditType,
						Label:    "種別",
						Style:    discordgo.TextInputShort,
						Value:    rec.Type,
						Required: false,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: idEditTask,
						Label:    "内容",
						Style:    discordgo.TextInputParagraph,
						Value:    rec.Task,
						Required: true,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: idEditDue,
						Label:    "期限",
						Style:    discordgo.TextInputShort,
						Value:    rec.Due,
						Required: false,
					},
				}},
			},
		},
	}
}

// deleteModal asks for a natural-language description of what to remove.
func deleteModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idDeleteModal,
			Title:    "削除する予定の情報を入力",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    idDeleteInput,
						Label:       "削除したい予定の特徴を教えてください",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "例: 「数学の宿題」と「来週のレポート」",
						Required:    true,
					},
				}},
			},
		},
	}
}

func editModalID(index int) string {
	return idEditModalPrefix + strconv.Itoa(index)
}

// parseEditModalID extracts the row index from an edit-modal custom ID.
func parseEditModalID(customID string) (int, bool) {
	if !strings.HasPrefix(customID, idEditModalPrefix) {
		return 0, false
	}
	index, err := strconv.Atoi(strings.TrimPrefix(customID, idEditModalPrefix))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// modalValue digs a text input's value out of submitted modal components.
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if input, ok := comp.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
