package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/habitloop/habitloop/internal/habits"
	"github.com/habitloop/habitloop/internal/schema"
)

var habitCmd = &cobra.Command{
	Use:   "habit",
	Short: "Manage habits",
}

var (
	habitCategory string
	habitGoal     string
	habitDays     []int
	habitEvery    int
	habitMonthDay int
	doneDate      string
)

var habitAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a habit",
	Long: `Create a habit with a schedule.

Schedules:
  --days 1,3,5             weekly on Monday, Wednesday, Friday
  --days 6 --every 2       every second Saturday
  --month-day 1            monthly on the 1st`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		rule := scheduleFromFlags()
		svc := habits.NewService(e.store, e.cloud, nil, quietLogger(), e.cfg.UserID)
		h, err := svc.CreateHabit(cmd.Context(), args[0], habitCategory, rule, habitGoal)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Created habit %s (%s)\n", h.Name, h.ID)
	},
}

var habitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List habits with current streaks",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		svc := habits.NewService(e.store, e.cloud, nil, quietLogger(), e.cfg.UserID)
		list, err := svc.ListHabits(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		if len(list) == 0 {
			fmt.Println("No habits yet. Create one with 'habitloop habit add'.")
			return
		}

		today := time.Now().UTC()
		for _, h := range list {
			streak := 0
			if !svc.CloudOnly() {
				streak, _ = svc.Streak(cmd.Context(), h.ID, today)
			}
			label := h.Name
			if h.Category != "" {
				label = fmt.Sprintf("%s [%s]", h.Name, h.Category)
			}
			fmt.Printf("%-40s streak %-4d %s\n", label, streak, h.ID)
		}
	},
}

var habitDoneCmd = &cobra.Command{
	Use:   "done <habit-id>",
	Short: "Toggle a completion for a habit",
	Long: `Toggle the completion state for a habit on a date (today by
default). Toggling twice returns to the original state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		date := doneDate
		if date == "" {
			date = time.Now().UTC().Format(schema.DateLayout)
		}

		svc := habits.NewService(e.store, e.cloud, nil, quietLogger(), e.cfg.UserID)
		done, err := svc.Toggle(cmd.Context(), args[0], date)
		if err != nil {
			fatalf("%v", err)
		}
		if done {
			fmt.Printf("Marked done for %s\n", date)
		} else {
			fmt.Printf("Unmarked for %s\n", date)
		}
	},
}

var habitRmCmd = &cobra.Command{
	Use:   "rm <habit-id>",
	Short: "Delete a habit",
	Long: `Delete a habit. The habit is tombstoned locally and the deletion
propagates to other devices on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		svc := habits.NewService(e.store, e.cloud, nil, quietLogger(), e.cfg.UserID)
		if err := svc.DeleteHabit(cmd.Context(), args[0]); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("Habit deleted.")
	},
}

func scheduleFromFlags() schema.ScheduleRule {
	switch {
	case habitMonthDay > 0:
		return schema.ScheduleRule{Kind: schema.ScheduleMonthly, MonthDay: habitMonthDay}
	case habitEvery > 1:
		return schema.ScheduleRule{Kind: schema.ScheduleInterval, TaskDays: habitDays, WeekInterval: habitEvery}
	default:
		days := habitDays
		if len(days) == 0 {
			days = []int{0, 1, 2, 3, 4, 5, 6}
		}
		return schema.ScheduleRule{Kind: schema.ScheduleWeekly, TaskDays: days}
	}
}

func init() {
	habitAddCmd.Flags().StringVar(&habitCategory, "category", "", "habit category")
	habitAddCmd.Flags().StringVar(&habitGoal, "goal", "", "parent goal habit id")
	habitAddCmd.Flags().IntSliceVar(&habitDays, "days", nil, "weekdays the habit is due (0=Sunday)")
	habitAddCmd.Flags().IntVar(&habitEvery, "every", 1, "repeat every N weeks")
	habitAddCmd.Flags().IntVar(&habitMonthDay, "month-day", 0, "day of month the habit is due")
	habitDoneCmd.Flags().StringVar(&doneDate, "date", "", "date to toggle (YYYY-MM-DD, default today)")

	habitCmd.AddCommand(habitAddCmd, habitListCmd, habitDoneCmd, habitRmCmd)
}
