package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/staffdesk/internal/api"
	"github.com/kalambet/staffdesk/internal/config"
	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/survey"
)

// withClient runs fn against the local server using the command's context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *apiClient) error) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, c)
}

// query builds "?k=v&..." from the non-empty pairs.
func query(pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set(pairs[i], pairs[i+1])
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// --- vacation ---

var vacationCmd = &cobra.Command{
	Use:   "vacation",
	Short: "Manage vacation requests",
}

var vacationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vacation requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/vacation-requests"+query(
				"employeeId", flagString(cmd, "employee"),
				"status", flagString(cmd, "status"),
			))
			if err != nil {
				return err
			}
			var list []portal.VacationRequest
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
			if flagBool(cmd, "json") {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, len(list))
			for i, r := range list {
				rows[i] = []string{r.ID, r.EmployeeName, string(r.Type), r.StartDate, r.EndDate, strconv.Itoa(r.Days), string(r.Status)}
			}
			printTable(cmd.OutOrStdout(), []string{"id", "employee", "type", "start", "end", "days", "status"}, rows, 6)
			return nil
		})
	},
}

var vacationRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit a vacation request",
	Long: `Submit a vacation request. HR is notified.

Examples:
  staffdesk vacation request --employee-id emp1 --employee-name "John Employee" \
    --type paid --start 2024-06-01 --end 2024-06-05 --reason "Family vacation"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := portal.NewVacationRequest{
			EmployeeID:   flagString(cmd, "employee-id"),
			EmployeeName: flagString(cmd, "employee-name"),
			Type:         portal.VacationType(flagString(cmd, "type")),
			StartDate:    flagString(cmd, "start"),
			EndDate:      flagString(cmd, "end"),
			Reason:       flagString(cmd, "reason"),
			Comments:     flagString(cmd, "comments"),
		}
		in.Days, _ = cmd.Flags().GetInt("days")
		if in.EmployeeID == "" || in.StartDate == "" || in.EndDate == "" {
			return fmt.Errorf("--employee-id, --start and --end are required")
		}

		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.post(ctx, "/vacation-requests", in)
			if err != nil {
				return err
			}
			var created portal.VacationRequest
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			printSuccess("Submitted request %s (%d days)", created.ID, created.Days)
			return nil
		})
	},
}

func decisionCmd(use, short, action string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by := flagString(cmd, "by")
			if by == "" {
				return fmt.Errorf("--by is required")
			}
			body := map[string]string{"approvedBy": by, "comments": flagString(cmd, "comments")}
			return withClient(cmd, func(ctx context.Context, c *apiClient) error {
				resp, err := c.post(ctx, "/vacation-requests/"+url.PathEscape(args[0])+"/"+action, body)
				if err != nil {
					return err
				}
				var updated portal.VacationRequest
				if err := decodeJSON(resp, &updated); err != nil {
					return err
				}
				printSuccess("Request %s is now %s", updated.ID, updated.Status)
				return nil
			})
		},
	}
	cmd.Flags().String("by", "", "who is deciding")
	cmd.Flags().String("comments", "", "comments for the employee")
	return cmd
}

var vacationAttachCmd = &cobra.Command{
	Use:   "attach <id> <file.pdf>",
	Short: "Attach a PDF (for example a sick note) to a vacation request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			path := "/vacation-requests/" + url.PathEscape(args[0]) + "/documents" + query("filename", filepath.Base(args[1]))
			resp, err := c.post(ctx, path, rawBody{data: data, contentType: "application/pdf"})
			if err != nil {
				return err
			}
			var doc struct {
				ID    string `json:"id"`
				Pages int    `json:"pages"`
				Text  string `json:"text"`
			}
			if err := decodeJSON(resp, &doc); err != nil {
				return err
			}
			printSuccess("Attached %s (%d pages, %d characters of text)", doc.ID, doc.Pages, len(doc.Text))
			return nil
		})
	},
}

var vacationDocumentsCmd = &cobra.Command{
	Use:   "documents <id>",
	Short: "Show the text of documents attached to a vacation request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/vacation-requests/"+url.PathEscape(args[0])+"/documents")
			if err != nil {
				return err
			}
			var docs []struct {
				ID       string `json:"id"`
				Filename string `json:"filename"`
				Text     string `json:"text"`
			}
			if err := decodeJSON(resp, &docs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range docs {
				fmt.Fprintf(out, "%s %s\n%s\n\n", colorize(colorBold, d.Filename), d.ID, d.Text)
			}
			return nil
		})
	},
}

func init() {
	vacationListCmd.Flags().String("employee", "", "only requests by this employee id")
	vacationListCmd.Flags().String("status", "", "pending, approved or rejected")
	vacationListCmd.Flags().Bool("json", false, "print JSON")

	f := vacationRequestCmd.Flags()
	f.String("employee-id", "", "employee id")
	f.String("employee-name", "", "employee display name")
	f.String("type", "paid", "paid, unpaid, sick, maternity or paternity")
	f.String("start", "", "first day (YYYY-MM-DD)")
	f.String("end", "", "last day (YYYY-MM-DD)")
	f.Int("days", 0, "number of days (default: counted from the dates)")
	f.String("reason", "", "reason for the request")
	f.String("comments", "", "optional comments")

	vacationCmd.AddCommand(vacationListCmd, vacationRequestCmd, vacationAttachCmd, vacationDocumentsCmd)
	vacationCmd.AddCommand(
		decisionCmd("approve", "Approve a pending vacation request", "approve"),
		decisionCmd("reject", "Reject a pending vacation request", "reject"),
	)
}

// --- objective ---

var objectiveCmd = &cobra.Command{
	Use:   "objective",
	Short: "Manage employee objectives",
}

var objectiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List objectives",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/objectives"+query(
				"employeeId", flagString(cmd, "employee"),
				"managerId", flagString(cmd, "manager"),
				"status", flagString(cmd, "status"),
			))
			if err != nil {
				return err
			}
			var list []portal.Objective
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
			if flagBool(cmd, "json") {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, len(list))
			for i, o := range list {
				rows[i] = []string{o.ID, o.Title, o.EmployeeName, strconv.Itoa(o.Progress) + "%", string(o.Status), o.DueDate}
			}
			printTable(cmd.OutOrStdout(), []string{"id", "title", "employee", "progress", "status", "due"}, rows, 4)
			return nil
		})
	},
}

var objectiveAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an objective",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := portal.NewObjective{
			Title:        flagString(cmd, "title"),
			EmployeeID:   flagString(cmd, "employee-id"),
			EmployeeName: flagString(cmd, "employee-name"),
			ManagerID:    flagString(cmd, "manager-id"),
			DueDate:      flagString(cmd, "due"),
		}
		if in.Title == "" {
			return fmt.Errorf("--title is required")
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.post(ctx, "/objectives", in)
			if err != nil {
				return err
			}
			var created portal.Objective
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			printSuccess("Created objective %s", created.ID)
			return nil
		})
	},
}

var objectiveProgressCmd = &cobra.Command{
	Use:   "progress <id> <percent>",
	Short: "Record progress on an objective; the manager is notified",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.Atoi(strings.TrimSuffix(args[1], "%"))
		if err != nil {
			return fmt.Errorf("invalid percent %q", args[1])
		}
		u := portal.ObjectiveUpdate{Progress: &pct}
		if s := flagString(cmd, "status"); s != "" {
			st := portal.ObjectiveStatus(s)
			u.Status = &st
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.patch(ctx, "/objectives/"+url.PathEscape(args[0]), u)
			if err != nil {
				return err
			}
			var updated portal.Objective
			if err := decodeJSON(resp, &updated); err != nil {
				return err
			}
			printSuccess("%s is at %d%%", updated.Title, updated.Progress)
			return nil
		})
	},
}

func init() {
	objectiveListCmd.Flags().String("employee", "", "only objectives of this employee id")
	objectiveListCmd.Flags().String("manager", "", "only objectives of this manager id")
	objectiveListCmd.Flags().String("status", "", "not_started, in_progress, completed or overdue")
	objectiveListCmd.Flags().Bool("json", false, "print JSON")

	f := objectiveAddCmd.Flags()
	f.String("title", "", "objective title")
	f.String("employee-id", "", "employee id")
	f.String("employee-name", "", "employee display name")
	f.String("manager-id", "", "manager notified on progress")
	f.String("due", "", "due date (YYYY-MM-DD)")

	objectiveProgressCmd.Flags().String("status", "", "also set the status")

	objectiveCmd.AddCommand(objectiveListCmd, objectiveAddCmd, objectiveProgressCmd)
}

// --- notification ---

var notificationCmd = &cobra.Command{
	Use:   "notification",
	Short: "List and acknowledge notifications",
}

var notificationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		unread := ""
		if flagBool(cmd, "unread") {
			unread = "true"
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/notifications"+query(
				"role", flagString(cmd, "role"),
				"userId", flagString(cmd, "user"),
				"unread", unread,
			))
			if err != nil {
				return err
			}
			var list []portal.Notification
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
			if flagBool(cmd, "json") {
				return printJSON(cmd.OutOrStdout(), list)
			}
			out := cmd.OutOrStdout()
			for _, n := range list {
				marker := " "
				if !n.Read {
					marker = colorize(colorCyan, "●")
				}
				fmt.Fprintf(out, "%s %s  %s  %s\n    %s\n", marker, n.Timestamp.Local().Format("2006-01-02 15:04"), colorize(colorBold, n.Title), n.ID, n.Message)
			}
			return nil
		})
	},
}

var notificationReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark one notification, or with --all every matching one, as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all := flagBool(cmd, "all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a notification id or --all")
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			if !all {
				resp, err := c.post(ctx, "/notifications/"+url.PathEscape(args[0])+"/read", nil)
				if err != nil {
					return err
				}
				if err := decodeJSON(resp, nil); err != nil {
					return err
				}
				printSuccess("Marked %s as read", args[0])
				return nil
			}
			resp, err := c.post(ctx, "/notifications/read-all"+query("role", flagString(cmd, "role"), "userId", flagString(cmd, "user")), nil)
			if err != nil {
				return err
			}
			var result map[string]int
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Marked %d notifications as read", result["updated"])
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{notificationListCmd, notificationReadCmd} {
		c.Flags().String("role", "", "admin, hr, manager or employee")
		c.Flags().String("user", "", "user id")
	}
	notificationListCmd.Flags().Bool("unread", false, "only unread notifications")
	notificationListCmd.Flags().Bool("json", false, "print JSON")
	notificationReadCmd.Flags().Bool("all", false, "mark every matching notification as read")

	notificationCmd.AddCommand(notificationListCmd, notificationReadCmd)
}

// --- survey ---

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Manage employee surveys",
}

var surveyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List surveys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/surveys"+query("status", flagString(cmd, "status")))
			if err != nil {
				return err
			}
			var list []survey.Survey
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
			rows := make([][]string, len(list))
			for i, s := range list {
				rows[i] = []string{s.ID, s.Title, string(s.Status), strconv.Itoa(len(s.Questions)), s.EndDate}
			}
			printTable(cmd.OutOrStdout(), []string{"id", "title", "status", "questions", "ends"}, rows, 2)
			return nil
		})
	},
}

var surveyCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a survey from a YAML or JSON definition",
	Long: `Create a survey from a YAML or JSON definition.

Example survey.yaml:
  title: Engagement pulse
  createdBy: hr1
  status: active
  anonymous: true
  questions:
    - type: rating
      text: How happy are you at work?
      required: true
    - type: yes_no
      text: Would you recommend us?`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := readSurveyFile(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.post(ctx, "/surveys", def)
			if err != nil {
				return err
			}
			var created survey.Survey
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			printSuccess("Created survey %s (%s, %d questions)", created.ID, created.Status, len(created.Questions))
			return nil
		})
	},
}

// readSurveyFile parses a survey definition. JSON is valid YAML, so one
// decoder handles both.
func readSurveyFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening survey file: %w", err)
	}
	defer f.Close()

	var def map[string]any
	if err := yaml.NewDecoder(f).Decode(&def); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("survey file %s is empty", path)
		}
		return nil, fmt.Errorf("parsing survey file: %w", err)
	}
	return def, nil
}

var surveyStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show response rate and per-question results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/surveys/"+url.PathEscape(args[0])+"/stats")
			if err != nil {
				return err
			}
			var st survey.Stats
			if err := decodeJSON(resp, &st); err != nil {
				return err
			}
			if flagBool(cmd, "json") {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printSurveyStats(cmd.OutOrStdout(), st)
			return nil
		})
	},
}

func printSurveyStats(w io.Writer, st survey.Stats) {
	fmt.Fprintf(w, "%d responses of %d employees (%.1f%%)\n", st.TotalResponses, st.Headcount, st.ResponseRate)
	for _, q := range st.Questions {
		fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, q.QuestionID), q.Text)
		switch q.Type {
		case survey.QuestionRating:
			fmt.Fprintf(w, "  average %.2f over %d answers\n", q.Average, q.Responses)
			for r := survey.MinRating; r <= survey.MaxRating; r++ {
				fmt.Fprintf(w, "  %d: %d\n", r, q.Distribution[r])
			}
		case survey.QuestionYesNo:
			fmt.Fprintf(w, "  yes %d, no %d\n", q.Yes, q.No)
		case survey.QuestionMultipleChoice:
			for opt, n := range q.Options {
				fmt.Fprintf(w, "  %s: %d\n", opt, n)
			}
		case survey.QuestionText:
			for _, a := range q.Answers {
				fmt.Fprintf(w, "  - %s\n", a)
			}
		}
	}
}

func init() {
	surveyListCmd.Flags().String("status", "", "draft, active or closed")
	surveyStatsCmd.Flags().Bool("json", false, "print JSON")
	surveyCmd.AddCommand(surveyListCmd, surveyCreateCmd, surveyStatsCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or clear stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output := flagString(cmd, "output")

		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			resp, err := c.get(ctx, "/data")
			if err != nil {
				return err
			}
			var dump api.Export
			if err := decodeJSON(resp, &dump); err != nil {
				return err
			}

			writer := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				writer = f
			}
			n, err := writeExport(writer, dump)
			if err != nil {
				return err
			}
			if output != "" {
				printSuccess("Exported %d records to %s", n, output)
			}
			return nil
		})
	},
}

// writeExport writes one {"type","data"} line per record.
func writeExport(w io.Writer, dump api.Export) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	emit := func(typ string, data any) error {
		n++
		return enc.Encode(map[string]any{"type": typ, "data": data})
	}
	for _, r := range dump.VacationRequests {
		if err := emit("vacation_request", r); err != nil {
			return n, err
		}
	}
	for _, o := range dump.Objectives {
		if err := emit("objective", o); err != nil {
			return n, err
		}
	}
	for _, nt := range dump.Notifications {
		if err := emit("notification", nt); err != nil {
			return n, err
		}
	}
	for _, s := range dump.Surveys {
		if err := emit("survey", s); err != nil {
			return n, err
		}
	}
	for _, r := range dump.SurveyResponses {
		if err := emit("survey_response", r); err != nil {
			return n, err
		}
	}
	return n, nil
}

var dataClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagBool(cmd, "confirm") {
			printWarning("This will delete ALL stored data. Use --confirm to proceed.")
			return nil
		}
		return withClient(cmd, func(ctx context.Context, c *apiClient) error {
			printStep("Clearing vacation requests, objectives, notifications and surveys...")
			resp, err := c.delete(ctx, "/data")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, nil); err != nil {
				return err
			}
			printSuccess("All data cleared")
			return nil
		})
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	dataCmd.AddCommand(dataExportCmd, dataClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
