package capture

import "strings"

// Page-side JS/CSS used by the capture pipeline, ported verbatim from
// the original CDP client's script constants.

const disableAnimationsCSS = `
*, *::before, *::after {
  transition: none !important;
  animation: none !important;
}
* {
  pointer-events: none !important;
}
* {
  caret-color: transparent !important;
}
`

// waitForReadyJS resolves once fonts are loaded AND the DOM has been
// quiescent for 100ms, rejecting after a 10s ceiling. Both halves of
// this compound signal run concurrently via Promise.all.
const waitForReadyJS = `
(function waitForReady() {
    return new Promise((resolve, reject) => {
        const TIMEOUT = 10000;
        const DOM_SETTLE_MS = 100;

        const timer = setTimeout(() => {
            reject(new Error('Ready detection timed out after 10s'));
        }, TIMEOUT);

        const fontsReady = document.fonts.ready;

        const domStable = new Promise((res) => {
            let settleTimer = null;
            const observer = new MutationObserver(() => {
                if (settleTimer) clearTimeout(settleTimer);
                settleTimer = setTimeout(() => {
                    observer.disconnect();
                    res();
                }, DOM_SETTLE_MS);
            });
            observer.observe(document.documentElement, {
                childList: true,
                subtree: true,
                attributes: true,
                characterData: true,
            });
            settleTimer = setTimeout(() => {
                observer.disconnect();
                res();
            }, DOM_SETTLE_MS);
        });

        Promise.all([fontsReady, domStable]).then(() => {
            clearTimeout(timer);
            resolve('ready');
        }).catch((err) => {
            clearTimeout(timer);
            reject(err);
        });
    });
})()
`

const injectCSSTemplate = "(function(){var s=document.createElement('style');s.textContent=`%s`;document.head.appendChild(s);})()"

// finishAnimationsJS complements the CSS injection (which only stops new
// CSS animations) by settling JS-driven ones: finite animations are
// jumped to their end state, infinite ones are cancelled outright.
const finishAnimationsJS = `
(function() {
    document.getAnimations().forEach(function(a) {
        try {
            var timing = a.effect && a.effect.getComputedTiming && a.effect.getComputedTiming();
            if (timing && Number.isFinite(timing.endTime)) {
                a.finish();
            } else {
                a.cancel();
            }
        } catch(e) {}
    });
})()
`

// waitForStoryRootJS polls for the first matching root element to
// appear with non-zero rendered dimensions, 100ms interval, 10s ceiling.
const waitForStoryRootJS = `
(function waitForStoryRoot() {
    return new Promise(function(resolve, reject) {
        var TIMEOUT = 10000;
        var INTERVAL = 100;
        var selector = '#storybook-root > *, #root > *';
        var timer = setTimeout(function() {
            reject(new Error('Story root selector "' + selector + '" not found or has zero dimensions after 10s'));
        }, TIMEOUT);
        function check() {
            var el = document.querySelector(selector);
            if (el) {
                var rect = el.getBoundingClientRect();
                if (rect.width > 0 && rect.height > 0) {
                    clearTimeout(timer);
                    resolve('found');
                    return;
                }
            }
            setTimeout(check, INTERVAL);
        }
        check();
    });
})()
`

// getStoryRootBoundsJS walks the story root depth-first, unions the
// bounding rects of every visible, unclipped descendant, and returns
// the result as a JSON string (the result crosses the transport, so it
// cannot be a live object). Falls back to the body rect when no root
// container or no visible candidates are found.
const getStoryRootBoundsJS = `
(function() {
    var selector = '#storybook-root > *, #root > *';

    function hasOverflow(el) {
        var s = window.getComputedStyle(el);
        var vals = ['auto', 'hidden', 'scroll'];
        return vals.indexOf(s.overflowY) !== -1 ||
               vals.indexOf(s.overflowX) !== -1 ||
               vals.indexOf(s.overflow) !== -1;
    }

    function hasFixedPosition(el) {
        return window.getComputedStyle(el).position === 'fixed';
    }

    function isElementHiddenByOverflow(el, ctx) {
        function isOutOfBounds() {
            try {
                var er = el.getBoundingClientRect();
                var cr = ctx.hasParentOverflowHidden.getBoundingClientRect();
                return er.top < cr.top || er.bottom > cr.bottom ||
                       er.left < cr.left || er.right > cr.right;
            } catch(e) { return false; }
        }
        if (hasFixedPosition(el)) return false;
        if (ctx.parentNotVisible) return true;
        if (ctx.hasParentFixedPosition && ctx.hasParentOverflowHidden &&
            ctx.hasParentFixedPosition === ctx.hasParentOverflowHidden)
            return isOutOfBounds();
        if (ctx.hasParentFixedPosition && ctx.hasParentOverflowHidden &&
            ctx.hasParentOverflowHidden !== ctx.hasParentFixedPosition &&
            ctx.hasParentOverflowHidden.contains(ctx.hasParentFixedPosition))
            return false;
        if (ctx.hasParentOverflowHidden) return isOutOfBounds();
        return false;
    }

    function isVisible(el) {
        var s = window.getComputedStyle(el);
        return !(s.visibility === 'hidden' || s.display === 'none' ||
                 s.opacity === '0' ||
                 ((s.width === '0px' || s.height === '0px') && s.padding === '0px'));
    }

    var elements = [];

    function walk(el, ctx) {
        if (!el) return;
        var ignoreOverflow = el.parentElement === ctx.root && hasOverflow(ctx.root);
        var hidden = ignoreOverflow ? false :
            isElementHiddenByOverflow(el, ctx);
        if (isVisible(el) && !ctx.isRoot && !hidden) {
            elements.push(el);
        }
        for (var node = el.firstChild; node; node = node.nextSibling) {
            if (node.nodeType === 1) {
                walk(node, {
                    root: ctx.root,
                    isRoot: false,
                    parentNotVisible: hidden,
                    hasParentFixedPosition: hasFixedPosition(el) ? el : ctx.hasParentFixedPosition,
                    hasParentOverflowHidden: hasOverflow(el) ? el : ctx.hasParentOverflowHidden,
                });
            }
        }
    }

    var roots = Array.from(document.querySelectorAll(selector))
        .map(function(e) { return e.parentElement; });
    var root = null;
    if (roots.length === 1) {
        root = roots[0];
    } else {
        root = roots.reduce(function(r, n) {
            if (!r) return n;
            return (r.contains(n) && r !== n) ? n : r;
        }, null);
    }

    if (!root || !root.children.length) {
        var br = document.body.getBoundingClientRect();
        return JSON.stringify({ x: br.x, y: br.y, width: br.width, height: br.height });
    }

    walk(root, {
        isRoot: true,
        root: root,
        hasParentOverflowHidden: null,
        hasParentFixedPosition: null,
        parentNotVisible: false,
    });

    if (elements.length === 0) {
        var br = document.body.getBoundingClientRect();
        return JSON.stringify({ x: br.x, y: br.y, width: br.width, height: br.height });
    }

    var union = null;
    for (var i = 0; i < elements.length; i++) {
        var r = elements[i].getBoundingClientRect();
        if (!union) {
            union = { x: r.x, y: r.y, width: r.width, height: r.height };
        } else {
            var xMin = Math.min(union.x, r.x);
            var yMin = Math.min(union.y, r.y);
            var xMax = Math.max(union.x + union.width, r.x + r.width);
            var yMax = Math.max(union.y + union.height, r.y + r.height);
            union = { x: xMin, y: yMin, width: xMax - xMin, height: yMax - yMin };
        }
    }

    return JSON.stringify({
        x: Math.floor(union.x),
        y: Math.floor(union.y),
        width: Math.ceil(union.width),
        height: Math.ceil(union.height)
    });
})()
`

// cssForTemplateLiteral escapes css for embedding inside a JS template
// literal (backtick string). Order matters: backslashes first, then
// backticks, then "${" so an already-escaped backslash isn't re-escaped.
func cssForTemplateLiteral(css string) string {
	css = strings.ReplaceAll(css, `\`, `\\`)
	css = strings.ReplaceAll(css, "`", "\\`")
	css = strings.ReplaceAll(css, "${", `\${`)
	return css
}

func injectCSSScript(css string) string {
	return strings.Replace(injectCSSTemplate, "%s", cssForTemplateLiteral(css), 1)
}
