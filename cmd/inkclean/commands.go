package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/wudi/inkclean/config"
	"github.com/wudi/inkclean/editor"
	"github.com/wudi/inkclean/imageio"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var out, lang string
	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Detect text and write a region mask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, root, func(s *editor.Session, cfg config.Config) error {
				if err := loadImage(cmd.Context(), s, args[0]); err != nil {
					return err
				}
				if err := scan(cmd, s, pick(lang, cfg.Detect.Language)); err != nil {
					return err
				}
				return imageio.SaveMask(out, s.Mask())
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "mask.png", "mask output path")
	cmd.Flags().StringVar(&lang, "lang", "", "target language (en, ko, ja, zh)")
	return cmd
}

func newCleanCmd(root *rootOptions) *cobra.Command {
	var out, maskPath string
	var bands int
	cmd := &cobra.Command{
		Use:   "clean <image>",
		Short: "Inpaint the masked regions of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maskPath == "" {
				return fmt.Errorf("--mask is required")
			}
			return withSession(cmd, root, func(s *editor.Session, cfg config.Config) error {
				if err := loadImage(cmd.Context(), s, args[0]); err != nil {
					return err
				}
				m, err := imageio.LoadMask(maskPath)
				if err != nil {
					return err
				}
				if err := s.SetMask(m); err != nil {
					return err
				}
				if err := clean(cmd, s, bands); err != nil {
					return err
				}
				return imageio.Save(out, s.Image())
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "out.png", "image output path")
	cmd.Flags().StringVar(&maskPath, "mask", "", "mask image; non-black pixels are inpainted")
	cmd.Flags().IntVar(&bands, "bands", 0, "number of row bands (0 uses the config)")
	return cmd
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var out, maskOut, lang string
	var bands int
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Scan for text and inpaint it in one pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, root, func(s *editor.Session, cfg config.Config) error {
				if err := loadImage(cmd.Context(), s, args[0]); err != nil {
					return err
				}
				if err := scan(cmd, s, pick(lang, cfg.Detect.Language)); err != nil {
					return err
				}
				if maskOut != "" {
					if err := imageio.SaveMask(maskOut, s.Mask()); err != nil {
						return err
					}
				}
				if !s.Mask().Any() {
					pslog.Ctx(cmd.Context()).Info("no text found")
				} else if err := clean(cmd, s, bands); err != nil {
					return err
				}
				return imageio.Save(out, s.Image())
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "out.png", "image output path")
	cmd.Flags().StringVar(&maskOut, "mask-output", "", "also write the synthesized mask")
	cmd.Flags().StringVar(&lang, "lang", "", "target language (en, ko, ja, zh)")
	cmd.Flags().IntVar(&bands, "bands", 0, "number of row bands (0 uses the config)")
	return cmd
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			data, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func withSession(cmd *cobra.Command, root *rootOptions, fn func(*editor.Session, config.Config) error) (err error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, pslog.Ctx(cmd.Context()))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(editor.NewSession(svc), cfg)
}

func loadImage(ctx context.Context, s *editor.Session, path string) error {
	img, err := imageio.Load(path)
	if err != nil {
		return err
	}
	s.Load(img)
	pslog.Ctx(ctx).Debug("image loaded", "path", path, "width", img.Width, "height", img.Height)
	return nil
}

func scan(cmd *cobra.Command, s *editor.Session, lang string) error {
	job, err := s.SynthesizeMask(cmd.Context(), lang)
	if err != nil {
		return err
	}
	return await(cmd.Context(), s, job)
}

func clean(cmd *cobra.Command, s *editor.Session, bands int) error {
	job, err := s.Inpaint(cmd.Context(), bands)
	if err != nil {
		return err
	}
	return await(cmd.Context(), s, job)
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
