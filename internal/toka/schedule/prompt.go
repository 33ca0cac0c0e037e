package schedule

import (
	"encoding/json"
	"fmt"
)

// The prompts are written in Japanese because that is the language the bot's
// users write schedules in; the instruction set mirrors the sheet's column
// vocabulary (種別/内容/期限) so the model maps fields consistently.

// extractPromptTmpl asks for a JSON array of {type, task, due} records.
// Substitutions: today (YYYY-MM-DD), tomorrow (YYYY-MM-DD), user input.
const extractPromptTmpl = `ユーザー入力を分析し、全予定の「種別」「内容」「期限」を抽出してください。` +
	`複数予定も個別に認識します。種別がない場合は「課題」「テスト」「その他」から選んでください。` +
	`提出・レポート・宿題などは「課題」、試験・テストなどは「テスト」としてください。` +
	`漢数字は半角に直し、内容は簡潔に。「今日」は%s、「明日」は%sとし、` +
	`「来週月曜」などの相対表現も期限はYYYY-MM-DD形式に正規化してください。` +
	`期限が読み取れない場合は「不明」とします。` +
	`結果は {"type": ..., "task": ..., "due": ...} のJSON配列形式で出力し、他説明は不要です。` +
	`該当なしは空配列 [] を返します。` + "\n" +
	`ユーザー入力: "%s"`

// deletionPromptTmpl asks for the index set the user wants deleted.
// Substitutions: today, indexed row list (JSON), user input.
const deletionPromptTmpl = `予定リストからユーザーが削除したい予定のインデックスを全て抽出してください。` +
	`曖昧な場合は該当しうる複数件を返して構いません。日付は今日(%s)を基準に解釈してください。` +
	`結果は {"indicesToDelete": [index1,...], "reason": "理由"} のJSON形式で出力してください。` +
	`特定できない場合はreasonに理由を記述し、indicesToDeleteは空にします。他の説明は不要です。` + "\n" +
	`予定リスト: %s` + "\n" +
	`ユーザーの削除リクエスト: "%s"`

// expiryPromptTmpl asks for the indices of rows whose due date has passed.
// The conservative rules are spelled out twice (positive and negative form)
// because destructive false positives are far worse than leaving a stale
// row for another day.
// Substitutions: today, indexed row list (JSON).
const expiryPromptTmpl = `今日は%sです。予定リストから期限が過ぎた(今日を含む)予定のインデックスを抽出してください。` +
	`対象はYYYY-MM-DD形式などの機械的に解釈できる日付が今日以前のものに限ります。` +
	`未来の日付、「来週」などの相対表現、「不明」、解釈できない期限は絶対に対象にしないでください。` +
	`迷った場合は対象外としてください。` +
	`結果は {"expiredIndices": [index1,...]} のJSON形式で。他説明は不要。該当なしは空配列で。` + "\n" +
	`予定リスト: %s`

// indexedRow is the row representation embedded in resolver/scanner prompts:
// the positional index plus the three record fields.
type indexedRow struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Task  string `json:"task"`
	Due   string `json:"due"`
}

// formatRows renders records as the indexed JSON list the prompts embed.
func formatRows(records []Record) string {
	rows := make([]indexedRow, len(records))
	for i, r := range records {
		rows[i] = indexedRow{Index: i, Type: r.Type, Task: r.Task, Due: r.Due}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		// Records are plain strings; marshalling cannot fail in practice.
		return "[]"
	}
	return string(data)
}

func extractPrompt(today, tomorrow, userText string) string {
	return fmt.Sprintf(extractPromptTmpl, today, tomorrow, userText)
}

func deletionPrompt(today string, records []Record, userText string) string {
	return fmt.Sprintf(deletionPromptTmpl, today, formatRows(records), userText)
}

func expiryPrompt(today string, records []Record) string {
	return fmt.Sprintf(expiryPromptTmpl, today, formatRows(records))
}
