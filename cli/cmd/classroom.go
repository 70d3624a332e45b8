package cmd

import (
	"fmt"

	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/instructify/liveclass/cli/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagVideoRTP  string
	flagAudioRTP  string
	flagSaveNotes bool
	flagNoTeach   bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a classroom and start teaching it",
	Long: `Create a classroom on the relay and join it as its teacher.

Examples:
  liveclass create --name "Dr. Hopper"
  liveclass create --video-rtp 127.0.0.1:5004 --audio-rtp 127.0.0.1:5006
  liveclass create --no-teach`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configOptions())
		if err != nil {
			return err
		}

		name := displayName()
		sp := ui.NewConnectionSpinner("Creating classroom...").Start()
		classID, err := signaling.NewAPI(cfg.ServerURL).CreateClassroom(cmd.Context(), name)
		sp.Stop()
		if err != nil {
			return fmt.Errorf("create classroom: %w", err)
		}

		fmt.Println(ui.ClassroomBox(classID, name))
		fmt.Println()
		if flagNoTeach {
			ui.PrintInfo("Start teaching with: liveclass teach " + classID)
			return nil
		}
		return runSession(cmd.Context(), cfg, teacherOptions(classID, name))
	},
}

var teachCmd = &cobra.Command{
	Use:     "teach <class-id>",
	Aliases: []string{"t"},
	Short:   "Teach an existing classroom",
	Long: `Join a classroom as its teacher. Joining an unknown code opens it.

Stream media by pointing any RTP source at the ingest ports, e.g.
  ffmpeg -re -i lecture.webm -c:v copy -an -f rtp rtp://127.0.0.1:5004

Examples:
  liveclass teach AB12CD34
  liveclass teach AB12CD34 --video-rtp 127.0.0.1:5004`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configOptions())
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), cfg, teacherOptions(args[0], displayName()))
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <class-id>",
	Aliases: []string{"j"},
	Short:   "Join a classroom as a student",
	Long: `Join a classroom as a student and receive the teacher's stream.

Examples:
  liveclass join AB12CD34 --name Ada
  liveclass join AB12CD34 --relay --turn turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configOptions())
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), cfg, sessionOptions{
			Role:    signaling.RoleStudent,
			Name:    displayName(),
			ClassID: args[0],
			Plain:   flagPlain,
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <class-id>",
	Short: "Show who is in a classroom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configOptions())
		if err != nil {
			return err
		}
		info, err := signaling.NewAPI(cfg.ServerURL).Classroom(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s %s  taught by %s  since %s\n\n",
			ui.IconClass, ui.BoldStyle.Render(info.ClassID), ui.TeacherStyle.Render(info.TeacherName),
			info.CreatedAt.Local().Format("15:04"))
		if !info.IsActive || len(info.Users) == 0 {
			ui.PrintWarning("Nobody is in this classroom right now")
			return nil
		}
		fmt.Println(ui.RosterView(info.Users))
		return nil
	},
}

func teacherOptions(classID, name string) sessionOptions {
	return sessionOptions{
		Role:      signaling.RoleTeacher,
		Name:      name,
		ClassID:   classID,
		Plain:     flagPlain,
		VideoRTP:  flagVideoRTP,
		AudioRTP:  flagAudioRTP,
		SaveNotes: flagSaveNotes,
	}
}

func init() {
	for _, c := range []*cobra.Command{createCmd, teachCmd} {
		c.Flags().StringVar(&flagVideoRTP, "video-rtp", "", "UDP address to receive VP8 RTP on")
		c.Flags().StringVar(&flagAudioRTP, "audio-rtp", "", "UDP address to receive Opus RTP on")
		c.Flags().BoolVar(&flagSaveNotes, "save-notes", false, "Write generated notes to a file")
	}
	createCmd.Flags().BoolVar(&flagNoTeach, "no-teach", false, "Only print the classroom code")

	rootCmd.AddCommand(createCmd, teachCmd, joinCmd, infoCmd)
}
